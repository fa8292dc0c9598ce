package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/njoerd114/holocron/internal/model"
)

const maxBodySize = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// recordInput is a create or update body. Absent fields are nil so PATCH can
// tell them apart from empty values. Read-only fields such as id, votes and
// the nested films are accepted and ignored.
type recordInput struct {
	RemoteID *int64  `json:"remote_id"`
	URL      *string `json:"url"`

	// characters, starships
	Name *string `json:"name"`

	// characters
	Height      *string  `json:"height"`
	Mass        *string  `json:"mass"`
	Gender      *string  `json:"gender"`
	FilmIDs     *[]int64 `json:"film_ids"`
	StarshipIDs *[]int64 `json:"starship_ids"`

	// films
	Title       *string `json:"title"`
	EpisodeID   *int64  `json:"episode_id"`
	Director    *string `json:"director"`
	Producer    *string `json:"producer"`
	ReleaseDate *string `json:"release_date"`

	// starships
	Model        *string `json:"model"`
	Manufacturer *string `json:"manufacturer"`
}

func decodeInput(w http.ResponseWriter, r *http.Request) (*recordInput, error) {
	var in recordInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, invalid("Request body is empty", "")
		}
		return nil, invalid("Invalid JSON body", err.Error())
	}
	return &in, nil
}

// requireFields checks that a create or full update names the record's
// identity and its title field.
func (in *recordInput) requireFields(kind model.Kind) error {
	var missing []string
	if in.RemoteID == nil {
		missing = append(missing, "remote_id")
	}
	switch kind {
	case model.KindFilm:
		if in.Title == nil {
			missing = append(missing, "title")
		}
	default:
		if in.Name == nil {
			missing = append(missing, "name")
		}
	}
	if len(missing) > 0 {
		return invalid("Missing required fields", strings.Join(missing, ", "))
	}
	return nil
}

// apply copies every field present in the input onto rec.
func (in *recordInput) apply(rec model.Record) {
	m := rec.Meta()
	if in.RemoteID != nil {
		m.RemoteID = *in.RemoteID
	}
	setString(&m.URL, in.URL)

	switch r := rec.(type) {
	case *model.Character:
		setString(&r.Name, in.Name)
		setString(&r.Height, in.Height)
		setString(&r.Mass, in.Mass)
		setString(&r.Gender, in.Gender)
		if in.FilmIDs != nil {
			r.FilmIDs = nonNil(*in.FilmIDs)
		} else {
			r.FilmIDs = nil
		}
		if in.StarshipIDs != nil {
			r.StarshipIDs = nonNil(*in.StarshipIDs)
		} else {
			r.StarshipIDs = nil
		}
	case *model.Film:
		setString(&r.Title, in.Title)
		if in.EpisodeID != nil {
			ep := *in.EpisodeID
			r.EpisodeID = &ep
		}
		setString(&r.Director, in.Director)
		setString(&r.Producer, in.Producer)
		setString(&r.ReleaseDate, in.ReleaseDate)
	case *model.Starship:
		setString(&r.Name, in.Name)
		setString(&r.Model, in.Model)
		setString(&r.Manufacturer, in.Manufacturer)
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// nonNil keeps an explicit empty list distinct from "leave links alone".
func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

type characterRules struct {
	RemoteID    int64   `json:"remote_id" validate:"gte=-1"`
	URL         string  `json:"url" validate:"omitempty,url,max=200"`
	Name        string  `json:"name" validate:"required,max=200"`
	Height      string  `json:"height" validate:"max=50"`
	Mass        string  `json:"mass" validate:"max=50"`
	Gender      string  `json:"gender" validate:"max=50"`
	FilmIDs     []int64 `json:"film_ids" validate:"dive,gt=0"`
	StarshipIDs []int64 `json:"starship_ids" validate:"dive,gt=0"`
}

type filmRules struct {
	RemoteID    int64  `json:"remote_id" validate:"gte=-1"`
	URL         string `json:"url" validate:"omitempty,url,max=200"`
	Title       string `json:"title" validate:"required,max=200"`
	EpisodeID   *int64 `json:"episode_id" validate:"omitempty,gte=0"`
	Director    string `json:"director" validate:"max=100"`
	Producer    string `json:"producer" validate:"max=200"`
	ReleaseDate string `json:"release_date" validate:"max=20"`
}

type starshipRules struct {
	RemoteID     int64  `json:"remote_id" validate:"gte=-1"`
	URL          string `json:"url" validate:"omitempty,url,max=200"`
	Name         string `json:"name" validate:"required,max=200"`
	Model        string `json:"model" validate:"max=200"`
	Manufacturer string `json:"manufacturer" validate:"max=200"`
}

// validateRecord checks the field limits of the stored columns.
func validateRecord(rec model.Record) error {
	var rules any
	switch r := rec.(type) {
	case *model.Character:
		rules = characterRules{r.RemoteID, r.URL, r.Name, r.Height, r.Mass, r.Gender, r.FilmIDs, r.StarshipIDs}
	case *model.Film:
		rules = filmRules{r.RemoteID, r.URL, r.Title, r.EpisodeID, r.Director, r.Producer, r.ReleaseDate}
	case *model.Starship:
		rules = starshipRules{r.RemoteID, r.URL, r.Name, r.Model, r.Manufacturer}
	default:
		return fmt.Errorf("%w: %T", model.ErrUnknownKind, rec)
	}

	err := validate.Struct(rules)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		details = append(details, fe.Field()+": "+rule)
	}
	return invalid("Validation failed", strings.Join(details, "; "))
}
