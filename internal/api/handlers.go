package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/njoerd114/holocron/internal/model"
	"github.com/njoerd114/holocron/internal/store"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListPage is the data of a list response.
type ListPage struct {
	Count    int            `json:"count"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Results  []model.Record `json:"results"`
}

// FetchSummary is the data of a fetch response. Stored is the number of
// records created by the run.
type FetchSummary struct {
	Stored     int    `json:"stored"`
	Fetched    int    `json:"fetched"`
	Existing   int    `json:"existing"`
	Unresolved int    `json:"unresolved"`
	RunID      string `json:"run_id"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "error", err)
		fail(w, http.StatusServiceUnavailable, codeUnhealthy, "Database unavailable", "")
		return
	}
	ok(w, map[string]string{"status": "ok"})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1, 1, 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := intQuery(r, "page_size", defaultPageSize, 1, maxPageSize)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// No stored collection reaches an offset that overflows int.
	if page-1 > math.MaxInt/size {
		pageOutOfRange(w, page)
		return
	}

	recs, total, err := s.store.List(r.Context(), kind, store.ListOptions{
		Search: r.URL.Query().Get("search"),
		Limit:  size,
		Offset: (page - 1) * size,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if page > 1 && len(recs) == 0 {
		pageOutOfRange(w, page)
		return
	}

	for _, rec := range recs {
		present(rec)
	}
	if recs == nil {
		recs = []model.Record{}
	}
	ok(w, ListPage{Count: total, Page: page, PageSize: size, Results: recs})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := decodeInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := in.requireFields(kind); err != nil {
		s.writeError(w, r, err)
		return
	}

	rec, err := model.New(kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in.apply(rec)
	if err := validateRecord(rec); err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.store.Create(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("record created", "kind", kind, "id", out.Meta().ID, "remote_id", out.Meta().RemoteID)
	created(w, present(out))
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request) {
	kind, id, err := recordParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.store.Get(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, present(rec))
}

// replace handles PUT. The identity and title fields must be present; other
// absent fields keep their stored values.
func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, true)
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, false)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request, full bool) {
	kind, id, err := recordParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := decodeInput(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if full {
		if err := in.requireFields(kind); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	rec, err := s.store.Get(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	in.apply(rec)
	if err := validateRecord(rec); err != nil {
		s.writeError(w, r, err)
		return
	}

	out, err := s.store.Update(r.Context(), rec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, present(out))
}

func (s *Server) destroy(w http.ResponseWriter, r *http.Request) {
	kind, id, err := recordParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), kind, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("record deleted", "kind", kind, "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request) {
	kind, err := kindParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.syncer.Sync(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, FetchSummary{
		Stored:     res.Created,
		Fetched:    res.Fetched,
		Existing:   res.Existing,
		Unresolved: res.Unresolved,
		RunID:      res.RunID,
	})
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	kind, id, err := recordParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rec, err := s.syncer.Vote(r.Context(), kind, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, present(rec))
}

func kindParam(r *http.Request) (model.Kind, error) {
	return model.ParseKind(chi.URLParam(r, "kind"))
}

// recordParams parses {kind} and {id}. An id that is not a positive integer
// cannot name a record, so it is reported as not found.
func recordParams(r *http.Request) (model.Kind, int64, error) {
	kind, err := kindParam(r)
	if err != nil {
		return "", 0, err
	}
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return "", 0, &model.NotFoundError{Kind: kind, ID: id}
	}
	return kind, id, nil
}

func pageOutOfRange(w http.ResponseWriter, page int) {
	fail(w, http.StatusNotFound, codeNotFound, "Invalid page", "page "+strconv.Itoa(page)+" is out of range")
}

// intQuery reads an integer query parameter of at least lo. hi 0 means
// unbounded; values above hi are clamped.
func intQuery(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo {
		return 0, invalid("Invalid query parameter", name+" must be an integer >= "+strconv.Itoa(lo))
	}
	if hi > 0 && n > hi {
		n = hi
	}
	return n, nil
}

// present fills nil link slices so characters always serialize lists.
func present(rec model.Record) model.Record {
	if c, isChar := rec.(*model.Character); isChar {
		if c.FilmIDs == nil {
			c.FilmIDs = []int64{}
		}
		if c.StarshipIDs == nil {
			c.StarshipIDs = []int64{}
		}
		if c.Films == nil {
			c.Films = []model.Film{}
		}
		if c.Starships == nil {
			c.Starships = []model.Starship{}
		}
	}
	return rec
}
