// Package server implements the admin/introspection HTTP API for the
// goslp daemon.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/urbasus/goslp/internal/slp"
)

// registrationView is the JSON shape of one registration-database entry
// returned by GET /v1/registrations.
type registrationView struct {
	URL         string    `json:"url"`
	ScopeList   string    `json:"scope_list"`
	ServiceType string    `json:"service_type"`
	Source      string    `json:"source"`
	PeerAddr    string    `json:"peer_addr"`
	Inserted    time.Time `json:"inserted"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// knownDAView is the JSON shape of one Known-DA tracker entry returned
// by GET /v1/knownda.
type knownDAView struct {
	Addr      string    `json:"addr"`
	BootTime  uint32    `json:"boot_time"`
	ScopeList string    `json:"scope_list"`
	URL       string    `json:"url"`
	LastSeen  time.Time `json:"last_seen"`
}

// statsView is the JSON shape returned by GET /v1/stats.
type statsView struct {
	Registrations int `json:"registrations"`
	KnownDAs      int `json:"known_das"`
}

func sourceTagString(s slp.SourceTag) string {
	switch s {
	case slp.SourceRemote:
		return "remote"
	case slp.SourceLocal:
		return "local"
	case slp.SourceStatic:
		return "static"
	default:
		return "unknown"
	}
}

// AdminServer is a thin go-chi adapter exposing the agent's registration
// database and Known-DA tracker for introspection (SPEC_FULL.md §12 —
// purely read-only, it does not replace or bypass the SLP wire
// protocol).
type AdminServer struct {
	agent  *slp.Agent
	logger *slog.Logger
}

// New builds an AdminServer and returns its routed http.Handler.
func New(agent *slp.Agent, logger *slog.Logger) (*AdminServer, http.Handler) {
	srv := &AdminServer{
		agent:  agent,
		logger: logger.With(slog.String("component", "server")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RecoveryMiddleware(srv.logger))
	r.Use(LoggingMiddleware(srv.logger))

	r.Get("/v1/registrations", srv.listRegistrations)
	r.Get("/v1/knownda", srv.listKnownDAs)
	r.Get("/v1/stats", srv.stats)

	return srv, r
}

func (s *AdminServer) listRegistrations(w http.ResponseWriter, r *http.Request) {
	regs := s.agent.DB.Snapshot()

	views := make([]registrationView, 0, len(regs))
	for _, reg := range regs {
		views = append(views, registrationView{
			URL:         reg.Reg.URL.URL,
			ScopeList:   reg.Reg.ScopeList,
			ServiceType: reg.Reg.ServiceType,
			Source:      sourceTagString(reg.Source),
			PeerAddr:    reg.PeerAddr.String(),
			Inserted:    reg.Inserted,
			ExpiresAt:   reg.ExpiresAt,
		})
	}

	writeJSON(w, r, s.logger, views)
}

func (s *AdminServer) listKnownDAs(w http.ResponseWriter, r *http.Request) {
	das := s.agent.KnownDAs.Snapshot()

	views := make([]knownDAView, 0, len(das))
	for _, da := range das {
		views = append(views, knownDAView{
			Addr:      da.Addr.String(),
			BootTime:  da.BootTime,
			ScopeList: da.ScopeList,
			URL:       da.URL,
			LastSeen:  da.LastSeen,
		})
	}

	writeJSON(w, r, s.logger, views)
}

func (s *AdminServer) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.logger, statsView{
		Registrations: s.agent.DB.Len(),
		KnownDAs:      s.agent.KnownDAs.Len(),
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorContext(r.Context(), "encode response", slog.String("error", err.Error()))
	}
}
