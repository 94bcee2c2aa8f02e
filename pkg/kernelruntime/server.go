package kernelruntime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/api"
	"github.com/bulwark-run/ecosphere/pkg/config"
	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/replay"
	"github.com/bulwark-run/ecosphere/pkg/validator"
)

// Server is the kernel's HTTP surface: a thin layer of handlers over a
// Runtime, each one decoding a request, delegating to Runtime or a
// package-level pure function, and rendering JSON (or an RFC 7807
// problem response on failure).
type Server struct {
	rt  *Runtime
	mux *http.ServeMux
}

// NewServer builds the kernel's HTTP server, wiring every SPEC endpoint to rt.
func NewServer(cfg *config.Config, rt *Runtime) *Server {
	s := &Server{rt: rt, mux: http.NewServeMux()}

	limiter := api.NewGlobalRateLimiter(50, 100)
	idem := api.NewIdempotencyStore(24 * time.Hour)

	s.mux.HandleFunc("GET /", s.handleRoot)
	s.mux.HandleFunc("GET /constitution", s.handleConstitution)
	s.mux.HandleFunc("GET /schemas", s.handleSchemas)
	s.mux.HandleFunc("GET /schema/{name}", s.handleSchema)
	s.mux.HandleFunc("GET /manifest", s.handleManifest)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /policy", s.handlePolicy)
	s.mux.HandleFunc("POST /verify-chain", s.handleVerifyChain)
	s.mux.HandleFunc("POST /replay", s.handleReplay)
	s.mux.HandleFunc("POST /evidence-view", s.handleEvidenceView)
	s.mux.Handle("POST /query", limiter.Middleware(api.NewQueryHandler(rt, rt)))
	s.mux.Handle("POST /resilience/decide", api.IdempotencyMiddleware(idem)(http.HandlerFunc(s.handleResilienceDecide)))

	return s
}

// Handler returns the composed http.Handler, for use with httptest or a
// real http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		api.WriteError(w, http.StatusServiceUnavailable, "Not Ready", err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "kernel": s.rt.Engine.KernelVersion})
}

func (s *Server) handleConstitution(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rt.Constitution)
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(validator.Schemas))
	for name := range validator.Schemas {
		names = append(names, name)
	}
	writeJSON(w, map[string]any{"schemas": names})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	raw, ok := validator.Schemas[name]
	if !ok {
		api.WriteNotFound(w, "no such schema: "+name)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write([]byte(raw))
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	manifest := epack.BuildManifest{
		Kernel:        "ecosphere",
		KernelVersion: s.rt.Engine.KernelVersion,
		FeatureFlags: map[string]bool{
			"full_resilience": s.rt.Config.KernelMode == config.ModeFullResilience,
			"persist_epacks":  s.rt.Config.PersistEpacks,
		},
	}
	if err := manifest.Seal(s.rt.Config.HashAlgorithm); err != nil {
		api.WriteInternal(w, err)
		return
	}
	writeJSON(w, manifest)
}

// handleMetrics reports dashboard counters the OpenTelemetry RED metrics
// already track internally (pkg/observability exports them via OTLP when
// ECOSPHERE_OTEL_ENABLED is set); this is the unauthenticated, pull-based
// summary a caller can read without its own OTLP collector.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"turns_total":      s.rt.TurnCount(),
		"otel_enabled":     s.rt.Config.OTelEnabled,
		"kernel_mode":      s.rt.Config.KernelMode,
	})
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.rt.Policy)
}

// verifyChainRequest carries a session's full EPACK chain so verify-chain
// can be run statelessly against a chain supplied by the caller, rather
// than requiring the kernel to have persisted it locally.
type verifyChainRequest struct {
	Records []epack.Record `json:"records"`
}

func (s *Server) handleVerifyChain(w http.ResponseWriter, r *http.Request) {
	var req verifyChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}

	if err := epack.VerifyChain(req.Records, s.rt.Config.HashAlgorithm); err != nil {
		writeJSON(w, map[string]any{"valid": false, "reason": err.Error()})
		return
	}
	writeJSON(w, map[string]any{"valid": true, "length": len(req.Records)})
}

type replayRequest struct {
	Records []epack.Record `json:"records"`
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}

	results := replay.ReplayChain(req.Records, replay.Options{Algo: s.rt.Config.HashAlgorithm})
	writeJSON(w, map[string]any{"results": results})
}

// evidenceViewRequest carries the record a caller wants a selectively
// disclosed projection of, plus an optional custom disclosure policy. A nil
// Policy falls back to a policy built from epack.DefaultAllowlist: every
// path under an allowlisted prefix is disclosed with an inclusion proof,
// everything else is sealed behind a commitment hash.
type evidenceViewRequest struct {
	Record epack.Record      `json:"record"`
	Policy *epack.ViewPolicy `json:"policy,omitempty"`
}

// handleEvidenceView derives an epack.View over a submitted record's
// payload: the schema at GET /schema/evidence-view describes its shape.
// This is the Merkle-backed selective-disclosure counterpart to
// persistence-time hash redaction (epack.Redact) — it runs read-side,
// against an already-sealed record, and never alters what was hashed or
// persisted.
func (s *Server) handleEvidenceView(w http.ResponseWriter, r *http.Request) {
	var req evidenceViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}

	policy := req.Policy
	if policy == nil {
		policy = defaultViewPolicy()
	}

	tree, err := epack.BuildTree(map[string]any(req.Record.Payload))
	if err != nil {
		api.WriteBadRequest(w, "payload not tree-able: "+err.Error())
		return
	}

	view, err := epack.DeriveView(map[string]any(req.Record.Payload), tree, *policy)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}
	writeJSON(w, view)
}

// defaultViewPolicy discloses every path under epack.DefaultAllowlist and
// seals everything else, mirroring the allowlist epack.Redact enforces at
// persistence time.
func defaultViewPolicy() *epack.ViewPolicy {
	rules := make([]epack.DisclosureRule, 0, len(epack.DefaultAllowlist))
	for _, p := range epack.DefaultAllowlist {
		rules = append(rules, epack.DisclosureRule{PathPattern: p + "/*", Action: epack.Disclose})
	}
	return &epack.ViewPolicy{PolicyID: "default-allowlist", Rules: rules}
}

type resilienceDecideRequest struct {
	Concentration float64 `json:"concentration"`
	Oscillation   float64 `json:"oscillation"`
}

func (s *Server) handleResilienceDecide(w http.ResponseWriter, r *http.Request) {
	var req resilienceDecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body")
		return
	}

	plan := s.rt.Resilience.Cycle(req.Concentration, req.Oscillation)
	if plan == nil {
		writeJSON(w, map[string]any{"action_taken": false})
		return
	}
	writeJSON(w, map[string]any{"action_taken": true, "plan": plan})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
