package remote

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/roach88/gigledger/internal/ledger"
)

// maxPayloadBytes bounds a single pushed row.
const maxPayloadBytes = 1 << 20

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewHandler exposes r over HTTP:
//
//	GET    /sheets?collection=a&collection=b   FetchSecondary
//	GET    /sheets/{collection}                FetchAll
//	PUT    /sheets/{collection}/{row}          PushRecord
//	DELETE /sheets/{collection}/{row}          DeleteRecord
func NewHandler(r Remote, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &sheetHandler{remote: r, logger: logger}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	mux.Route("/sheets", func(r chi.Router) {
		r.Get("/", h.fetchSecondary)
		r.Get("/{collection}", h.fetchAll)
		r.Put("/{collection}/{row}", h.push)
		r.Delete("/{collection}/{row}", h.delete)
	})
	return mux
}

type sheetHandler struct {
	remote Remote
	logger *slog.Logger
}

func (h *sheetHandler) fetchSecondary(w http.ResponseWriter, r *http.Request) {
	var cs []ledger.Collection
	for _, name := range r.URL.Query()["collection"] {
		c, err := ledger.ParseCollection(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown collection", err)
			return
		}
		cs = append(cs, c)
	}

	rows, err := h.remote.FetchSecondary(r.Context(), cs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *sheetHandler) fetchAll(w http.ResponseWriter, r *http.Request) {
	c, ok := collectionParam(w, r)
	if !ok {
		return
	}

	rows, err := h.remote.FetchAll(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *sheetHandler) push(w http.ResponseWriter, r *http.Request) {
	c, ok := collectionParam(w, r)
	if !ok {
		return
	}
	row, ok := rowParam(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body", err)
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "payload is not valid JSON", nil)
		return
	}

	if err := h.remote.PushRecord(r.Context(), c, row, body); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sheetHandler) delete(w http.ResponseWriter, r *http.Request) {
	c, ok := collectionParam(w, r)
	if !ok {
		return
	}
	row, ok := rowParam(w, r)
	if !ok {
		return
	}

	if err := h.remote.DeleteRecord(r.Context(), c, row); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sheetHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrRowNotFound) {
		writeError(w, http.StatusNotFound, "row not found", err)
		return
	}
	h.logger.Error("sheet request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err)
	writeError(w, http.StatusServiceUnavailable, "sheet unavailable", err)
}

func collectionParam(w http.ResponseWriter, r *http.Request) (ledger.Collection, bool) {
	c, err := ledger.ParseCollection(chi.URLParam(r, "collection"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown collection", err)
		return "", false
	}
	return c, true
}

func rowParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	row, err := strconv.ParseInt(chi.URLParam(r, "row"), 10, 64)
	if err != nil || row < 1 {
		writeError(w, http.StatusBadRequest, "row must be a positive integer", err)
		return 0, false
	}
	return row, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
