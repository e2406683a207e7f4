package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/roach88/gigledger/internal/engine"
)

// Service is the part of the engine the API needs.
// Implemented by *engine.Engine.
type Service interface {
	SyncNow(ctx context.Context) (engine.CommitReport, error)
	PendingCount(ctx context.Context) (int, error)
	Status() *engine.StatusTracker
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Current       engine.StatusEvent     `json:"current"`
	LastSync      *time.Time             `json:"last_sync,omitempty"`
	SinceLastSync string                 `json:"since_last_sync"`
	Pending       int                    `json:"pending"`
	Messages      []engine.StatusMessage `json:"messages"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// writeWait bounds a single WebSocket write.
const writeWait = 5 * time.Second

// NewRouter builds the status API over svc.
func NewRouter(svc Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{
		svc:    svc,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/status", h.status)
	r.Get("/status/stream", h.stream)
	r.Get("/pending", h.pending)
	r.Post("/sync", h.sync)
	return r
}

type handler struct {
	svc      Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	pending, err := h.svc.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count pending records", err)
		return
	}

	st := h.svc.Status()
	resp := StatusResponse{
		Current:       st.Current(),
		SinceLastSync: st.SinceLastSync(),
		Pending:       pending,
		Messages:      st.Messages(),
	}
	if last := st.LastSync(); !last.IsZero() {
		resp.LastSync = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) pending(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "count pending records", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": n})
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.SyncNow(r.Context())
	switch {
	case errors.Is(err, engine.ErrBusy):
		writeError(w, http.StatusConflict, "sync already in progress", nil)
	case err != nil:
		h.logger.Error("sync request failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "sync failed", err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// stream sends the current status, then every transition, until the
// client goes away.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	events, unsubscribe := h.svc.Status().Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads only detect the close; clients send nothing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeEvent(conn, h.svc.Status().Current()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				h.logger.Debug("status stream closed", "error", err)
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev engine.StatusEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// Serve runs h on addr until ctx is done, then shuts down gracefully. The
// sheet server uses it as well.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
