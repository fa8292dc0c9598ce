// Package model defines the catalog record types shared by the store, the
// sync engine, and the HTTP API, together with the mapping from raw remote
// catalog records to local records.
package model

import (
	"fmt"
	"strings"
)

// Kind names one of the independently namespaced record collections. The
// string value is the collection name used in the local API and database.
type Kind string

const (
	// KindCharacter is the characters collection (remote resource "people").
	KindCharacter Kind = "characters"
	// KindFilm is the films collection.
	KindFilm Kind = "films"
	// KindStarship is the starships collection.
	KindStarship Kind = "starships"
)

// Kinds lists every kind in the order a full sync processes them.
var Kinds = []Kind{KindCharacter, KindFilm, KindStarship}

// ParseKind maps a collection name to its Kind. Matching is case-insensitive
// and accepts the remote resource name as an alias ("people").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "characters", "people":
		return KindCharacter, nil
	case "films":
		return KindFilm, nil
	case "starships":
		return KindStarship, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCharacter, KindFilm, KindStarship:
		return true
	}
	return false
}

// Resource returns the remote catalog resource name for k. The remote API
// calls characters "people".
func (k Kind) Resource() string {
	if k == KindCharacter {
		return "people"
	}
	return string(k)
}

// Singular returns the human-readable singular noun, used in messages.
func (k Kind) Singular() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindFilm:
		return "film"
	case KindStarship:
		return "starship"
	default:
		return string(k)
	}
}

func (k Kind) String() string { return string(k) }
