package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/hemma-app/hemma/internal/api"
	"github.com/hemma-app/hemma/internal/market"
	"github.com/hemma-app/hemma/internal/reconcile"
	"github.com/hemma-app/hemma/internal/session"
	"go.uber.org/zap"
)

// Server exposes the daemon's control API as HTTP over the session's Unix
// domain socket. Only the local user can reach it; the socket is 0600.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer creates the control server bound to the session's socket.
func NewServer(
	p Params,
	logger *zap.Logger,
	notifSvc *api.NotificationService,
	roomSvc *api.RoomService,
	statusSvc *api.StatusService,
	syncer *reconcile.Syncer,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	s.httpServer = &http.Server{Handler: s.routes(notifSvc, roomSvc, statusSvc, syncer)}
	return s, nil
}

func (s *Server) routes(notifSvc *api.NotificationService, roomSvc *api.RoomService, statusSvc *api.StatusService, syncer *reconcile.Syncer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusSvc.Report(notifSvc.Unread()))
	})

	mux.HandleFunc("GET /v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		views := notifSvc.List()
		writeJSON(w, http.StatusOK, map[string]any{
			"notifications": views,
			"unread":        notifSvc.Unread(),
		})
	})

	mux.HandleFunc("POST /v1/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		s.result(w, notifSvc.MarkAllRead(r.Context()))
	})

	mux.HandleFunc("POST /v1/notifications/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.result(w, notifSvc.MarkRead(r.Context(), id))
	})

	mux.HandleFunc("DELETE /v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		s.result(w, notifSvc.DeleteAll(r.Context()))
	})

	mux.HandleFunc("DELETE /v1/notifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.result(w, notifSvc.Delete(r.Context(), id))
	})

	mux.HandleFunc("POST /v1/reconcile", func(w http.ResponseWriter, r *http.Request) {
		s.result(w, syncer.Run(r.Context()))
	})

	mux.HandleFunc("GET /v1/rooms/{kind}", func(w http.ResponseWriter, r *http.Request) {
		views, err := roomSvc.List(r.PathValue("kind"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rooms": views})
	})

	mux.HandleFunc("POST /v1/rooms/{kind}/{id}/join", func(w http.ResponseWriter, r *http.Request) {
		s.result(w, roomSvc.Join(r.Context(), r.PathValue("id"), r.PathValue("kind")))
	})

	mux.HandleFunc("POST /v1/rooms/{kind}/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
		s.result(w, roomSvc.Leave(r.Context(), r.PathValue("id"), r.PathValue("kind")))
	})

	mux.HandleFunc("POST /v1/rooms/{kind}/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		s.result(w, roomSvc.MarkRead(r.PathValue("id"), r.PathValue("kind")))
	})

	mux.HandleFunc("POST /v1/rooms/{kind}/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
			return
		}
		s.result(w, roomSvc.Send(r.Context(), r.PathValue("id"), r.PathValue("kind"), req.Body))
	})

	return mux
}

// result maps a service error to a response. Auth faults get their own
// status so the CLI can tell "re-login" apart from "try again".
func (s *Server) result(w http.ResponseWriter, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	var authErr *market.AuthError
	if errors.As(err, &authErr) {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	s.logger.Warn("request failed", zap.Error(err))
	writeError(w, http.StatusBadGateway, err)
}

// Start begins serving requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("local API server starting", zap.String("socket", s.socketPath))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("local API server stopping")
	_ = s.httpServer.Shutdown(ctx)
	_ = os.Remove(s.socketPath)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad notification id %q", r.PathValue("id"))
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
