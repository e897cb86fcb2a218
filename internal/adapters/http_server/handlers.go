// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"listing_sync/internal/app"
	"listing_sync/internal/domain"
)

// Syncer runs one sync cycle on demand.
type Syncer interface {
	RunSyncCycle(ctx context.Context) (domain.SyncReport, error)
}

// Handlers groups the HTTP surface. Nil fields leave their routes unmounted.
type Handlers struct {
	Q          *app.QueryService
	Sync       Syncer
	AdminToken string
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type propertyList struct {
	Items []domain.PropertyRecord `json:"items"`
	Count int                     `json:"count"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	if h.Q != nil {
		s.mux.Get("/v1/properties", h.listProperties)
		s.mux.Get("/v1/properties/{externalId}", h.getProperty)
	}
	if h.Sync != nil {
		s.mux.With(RequireBearer(h.AdminToken)).Post("/v1/sync", h.triggerSync)
	}
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSONWithETag(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func (h *Handlers) listProperties(w http.ResponseWriter, r *http.Request) {
	items, err := h.Q.ListActive(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list properties failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not list properties")
		return
	}
	writeJSONWithETag(w, r, propertyList{Items: items, Count: len(items)})
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "externalId"))
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "externalId is required")
		return
	}
	rec, err := h.Q.GetProperty(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "property not found")
		return
	case err != nil:
		log.Error().Err(err).Str("external_id", id).Msg("get property failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not load property")
		return
	}
	writeJSONWithETag(w, r, rec)
}

// triggerSync runs a cycle synchronously. The cycle is detached from the
// request context so a dropped client does not cancel it.
func (h *Handlers) triggerSync(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Sync.RunSyncCycle(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, domain.ErrSyncInProgress):
		writeProblem(w, http.StatusConflict, "Conflict", "a sync cycle is already running")
		return
	case err != nil && rep.Aborted:
		writeProblem(w, http.StatusBadGateway, "Sync Aborted", err.Error())
		return
	case err != nil:
		writeProblem(w, http.StatusInternalServerError, "Sync Failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		log.Error().Err(err).Msg("failed to write sync report")
	}
}
