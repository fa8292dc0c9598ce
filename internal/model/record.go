package model

import (
	"fmt"
	"time"
)

// Base holds the fields every record kind shares.
type Base struct {
	// ID is the local primary key assigned by the store.
	ID int64 `json:"id"`

	// RemoteID is the identity extracted from URL. It is unique per kind and
	// never changes after the record is created.
	RemoteID int64 `json:"remote_id"`

	// URL is the remote catalog's locator for this record.
	URL string `json:"url"`

	// Votes only ever grows, one step per vote.
	Votes int64 `json:"votes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Meta returns the shared fields. Embedding Base gives every record type this
// method.
func (b *Base) Meta() *Base { return b }

// Record is implemented by *Character, *Film and *Starship.
type Record interface {
	Kind() Kind
	Meta() *Base
}

// Character is a person from the catalog.
type Character struct {
	Base
	Name   string `json:"name"`
	Height string `json:"height"`
	Mass   string `json:"mass"`
	Gender string `json:"gender"`

	// FilmIDs and StarshipIDs are local ids of linked records. They are only
	// edited through the CRUD API; sync never touches them.
	FilmIDs     []int64 `json:"film_ids"`
	StarshipIDs []int64 `json:"starship_ids"`

	// Films and Starships are the linked records, filled on reads.
	Films     []Film     `json:"films"`
	Starships []Starship `json:"starships"`
}

// Kind implements Record.
func (*Character) Kind() Kind { return KindCharacter }

// Film is a film from the catalog.
type Film struct {
	Base
	Title       string `json:"title"`
	EpisodeID   *int64 `json:"episode_id"`
	Director    string `json:"director"`
	Producer    string `json:"producer"`
	ReleaseDate string `json:"release_date"`
}

// Kind implements Record.
func (*Film) Kind() Kind { return KindFilm }

// Starship is a starship from the catalog.
type Starship struct {
	Base
	Name         string `json:"name"`
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

// Kind implements Record.
func (*Starship) Kind() Kind { return KindStarship }

// New returns an empty record of the given kind.
func New(kind Kind) (Record, error) {
	switch kind {
	case KindCharacter:
		return &Character{}, nil
	case KindFilm:
		return &Film{}, nil
	case KindStarship:
		return &Starship{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Outcome tells a get-or-create caller which branch was taken.
type Outcome int

const (
	// OutcomeCreated means a new record was inserted with the given defaults.
	OutcomeCreated Outcome = iota + 1
	// OutcomeExisting means a record with that identity was already stored
	// and was returned untouched.
	OutcomeExisting
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExisting:
		return "existing"
	default:
		return "unknown"
	}
}
