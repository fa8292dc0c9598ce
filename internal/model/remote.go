package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// InvalidRemoteID is returned by ResolveRemoteID when a locator does not end
// in a numeric segment.
const InvalidRemoteID int64 = -1

// ResolveRemoteID extracts the numeric identity from a catalog locator such
// as "https://swapi.info/api/people/42/". Surrounding slashes are ignored and
// the last path segment must be a base-10 number. Anything else yields
// InvalidRemoteID so one malformed record cannot abort a whole sync.
func ResolveRemoteID(locator string) int64 {
	trimmed := strings.Trim(locator, "/")
	if trimmed == "" {
		return InvalidRemoteID
	}
	seg := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if seg == "" {
		return InvalidRemoteID
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return InvalidRemoteID
		}
	}
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return InvalidRemoteID
	}
	return id
}

// RemoteRecord is one raw JSON object from the catalog's "results" array.
type RemoteRecord map[string]any

// String returns the field as text. Missing and null fields yield "".
// Numbers are formatted without a trailing ".0".
func (r RemoteRecord) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the field as an integer, or nil when it is missing, null, not
// a whole number, or outside the int64 range.
func (r RemoteRecord) Int(key string) *int64 {
	switch v := r[key].(type) {
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return nil
		}
		n := int64(v)
		return &n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil
		}
		return &n
	}
	return nil
}

// FromRemote builds the record that get-or-create inserts when the identity
// is not yet stored. Missing fields become "" (or nil for the episode
// number); they never cause an error. The only error is an unknown kind.
func FromRemote(kind Kind, raw RemoteRecord) (Record, error) {
	url := raw.String("url")
	base := Base{RemoteID: ResolveRemoteID(url), URL: url}

	switch kind {
	case KindCharacter:
		return &Character{
			Base:   base,
			Name:   raw.String("name"),
			Height: raw.String("height"),
			Mass:   raw.String("mass"),
			Gender: raw.String("gender"),
		}, nil
	case KindFilm:
		return &Film{
			Base:        base,
			Title:       raw.String("title"),
			EpisodeID:   raw.Int("episode_id"),
			Director:    raw.String("director"),
			Producer:    raw.String("producer"),
			ReleaseDate: raw.String("release_date"),
		}, nil
	case KindStarship:
		return &Starship{
			Base:         base,
			Name:         raw.String("name"),
			Model:        raw.String("model"),
			Manufacturer: raw.String("manufacturer"),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}
