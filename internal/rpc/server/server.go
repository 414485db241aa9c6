// Package server exposes the RPC facade over HTTP+JSON using gorilla/mux,
// the transport binding chosen in place of the original's gRPC/protobuf
// framing (see SPEC_FULL.md §1).
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jasonwang1/registercenter/internal/middleware"
	"github.com/jasonwang1/registercenter/internal/rpc"
	"github.com/jasonwang1/registercenter/internal/rpcerr"
)

// Server wires a Facade onto an HTTP router.
type Server struct {
	facade *rpc.Facade
	logger *slog.Logger
	router *mux.Router
}

// New builds a Server and registers its routes.
func New(facade *rpc.Facade, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{facade: facade, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the http.Handler to mount on an *http.Server, wrapped
// in the standard security-headers/recovery/logging middleware stack.
func (s *Server) Handler() http.Handler {
	return middleware.Stack(s.logger)(s.router)
}

func (s *Server) routes() {
	s.router.HandleFunc("/rpc/hello", s.handleHello).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/register", s.handleRegister).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/online", s.handleOnline).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/offline", s.handleOffline).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/ping", s.handlePing).Methods(http.MethodPost)
	s.router.HandleFunc("/rpc/check", s.handleCheck).Methods(http.MethodPost)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return rpcerr.Wrap(rpcerr.KindDecodeRequest, "decode_request", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encode response failed", "error", err)
	}
}

// writeErr maps a facade error to a transport status: decode failures are
// transport-level 400s, everything else is reported inside a 200 envelope
// per §7 ("protocol-level OK with an embedded result code"). Response
// encode failures never reach here; writeJSON only logs them.
func (s *Server) writeErr(w http.ResponseWriter, op string, err error) {
	var rpcErr *rpcerr.Error
	if errors.As(err, &rpcErr) && rpcErr.Kind == rpcerr.KindDecodeRequest {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Warn("rpc handler failed", "op", op, "error", err)
	s.writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	var req rpc.HelloRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, "hello", err)
		return
	}
	result, err := s.facade.Hello(r.Context(), req.From)
	if err != nil {
		s.writeErr(w, "hello", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.HelloResponse{Result: result})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req rpc.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, "register", err)
		return
	}
	watch, err := s.facade.Register(r.Context(), rpc.FromWire(req.ServiceInfo))
	if err != nil {
		s.writeErr(w, "register", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.RegisterResponse{WatchList: watch})
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	var req rpc.OnlineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, "online", err)
		return
	}
	watch, err := s.facade.Online(r.Context(), rpc.FromWire(req.ServiceInfo))
	if err != nil {
		s.writeErr(w, "online", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.OnlineResponse{WatchList: watch})
}

func (s *Server) handleOffline(w http.ResponseWriter, r *http.Request) {
	var req rpc.OfflineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, "offline", err)
		return
	}
	if err := s.facade.Offline(r.Context(), rpc.FromWire(req.ServiceInfo)); err != nil {
		s.writeErr(w, "offline", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.OfflineResponse{})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req rpc.PingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, "ping", err)
		return
	}
	if err := s.facade.Ping(r.Context(), rpc.FromWire(req.ServiceInfo)); err != nil {
		s.writeErr(w, "ping", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.PingResponse{})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req rpc.CheckRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, "check", err)
		return
	}
	passed, corrected, err := s.facade.Check(r.Context(), rpc.FromWire(req.ServiceInfo), req.WatchList)
	if err != nil {
		s.writeErr(w, "check", err)
		return
	}
	s.writeJSON(w, http.StatusOK, rpc.CheckResponse{IsPassed: passed, WatchList: corrected})
}
