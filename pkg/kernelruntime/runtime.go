// Package kernelruntime is the kernel's composition root. Every
// subsystem — turn engine, loaded policy document, constitution, live
// session state — is reified here as an explicit Runtime value rather
// than reached through package-level globals, so a process can run more
// than one independently-configured kernel and so tests never share
// hidden state between cases.
package kernelruntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/adapter"
	"github.com/bulwark-run/ecosphere/pkg/config"
	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/observability"
	"github.com/bulwark-run/ecosphere/pkg/policy"
	"github.com/bulwark-run/ecosphere/pkg/resilience"
	"github.com/bulwark-run/ecosphere/pkg/session"
	"github.com/bulwark-run/ecosphere/pkg/sink"
	"github.com/bulwark-run/ecosphere/pkg/turn"
)

// Runtime is the sole gateway for effecting a governed turn or reading
// kernel state. It implements api.TurnHandler and api.SessionStore so
// the HTTP layer can depend on it directly.
type Runtime struct {
	Config       *config.Config
	Constitution policy.Constitution
	Policy       *policy.Document
	Engine       *turn.Engine
	Resilience   *resilience.Runtime
	Sink         epack.Sink
	Telemetry    *observability.Provider

	mu        sync.Mutex
	sessions  map[string]*session.State
	turnCount uint64
}

// New builds a Runtime from a loaded Config, validated policy Document,
// and model adapter registry. It fails closed: a Runtime cannot be
// constructed without an EPACK signing key, matching the kernel's
// integrity guarantee that every Decision Object is signed.
func New(cfg *config.Config, doc *policy.Document, registry *adapter.Registry) (*Runtime, error) {
	if len(cfg.EpackSigningKey) == 0 {
		return nil, fmt.Errorf("kernelruntime: EPACK_SIGNING_KEY is required, refusing to start unsigned")
	}
	if errs := doc.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("kernelruntime: policy document %q invalid: %v", doc.PolicyID, errs)
	}

	if dp := cfg.DeploymentProfile; dp != nil {
		if !dp.AllowsProvider(cfg.Provider) {
			return nil, fmt.Errorf("kernelruntime: deployment profile %q forbids provider %q", dp.Code, cfg.Provider)
		}
		if !dp.AllowsHashAlgorithm(string(cfg.HashAlgorithm)) {
			return nil, fmt.Errorf("kernelruntime: deployment profile %q forbids hash algorithm %q", dp.Code, cfg.HashAlgorithm)
		}
	}

	constitution, err := policy.LoadConstitution(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("kernelruntime: load constitution: %w", err)
	}

	engine := turn.NewEngine(registry, cfg.Provider, cfg.Model, cfg.EpackSigningKey)
	engine.RedactMode = epack.RedactMode(cfg.RedactMode)

	var epackSink epack.Sink
	var err2 error
	if cfg.PersistEpacks {
		epackSink, err2 = sink.NewFile(cfg.EpackStorePath)
		if err2 != nil {
			return nil, fmt.Errorf("kernelruntime: open epack store %q: %w", cfg.EpackStorePath, err2)
		}
	} else {
		epackSink = sink.NewMemory()
	}

	telemetry, err3 := observability.New(context.Background(), &observability.Config{
		ServiceName:    "ecosphere",
		ServiceVersion: engine.KernelVersion,
		Environment:    string(cfg.KernelMode),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.OTelEnabled,
		Insecure:       true,
	})
	if err3 != nil {
		return nil, fmt.Errorf("kernelruntime: init telemetry: %w", err3)
	}

	return &Runtime{
		Config:       cfg,
		Constitution: constitution,
		Policy:       doc,
		Engine:       engine,
		Resilience:   resilience.NewRuntime(resilience.DefaultRecoveryPlans()),
		Sink:         epackSink,
		Telemetry:    telemetry,
		sessions:     make(map[string]*session.State),
	}, nil
}

// Get resolves a session by id, creating fresh state on first use.
// Implements api.SessionStore.
func (rt *Runtime) Get(id string) (*session.State, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if s, ok := rt.sessions[id]; ok {
		return s, nil
	}
	s, err := session.New(id)
	if err != nil {
		return nil, err
	}
	rt.sessions[id] = s
	return s, nil
}

// HandleTurn implements api.TurnHandler: it delegates to Engine, then
// appends the resulting EPACK record to Sink so the chain is durable
// (or at least queryable in-process) regardless of caller. A span and
// RED metrics wrap the whole call so /metrics and a trace backend both
// see every governed turn, not just ones that reach the model.
func (rt *Runtime) HandleTurn(ctx context.Context, sess *session.State, userText string) (turn.Result, error) {
	ctx, span := rt.Telemetry.StartSpan(ctx, "kernel.handle_turn")
	start := time.Now()
	var err error
	defer func() {
		rt.Telemetry.RecordRequest(ctx)
		rt.Telemetry.RecordDuration(ctx, time.Since(start))
		if err != nil {
			rt.Telemetry.RecordError(ctx, err)
		}
		span.End()
	}()

	res, err := rt.Engine.HandleTurn(ctx, sess, userText)
	if err != nil {
		return res, err
	}

	if rt.Sink != nil {
		if serr := rt.Sink.Append(ctx, sess.SessionID, res.Record); serr != nil {
			err = fmt.Errorf("kernelruntime: persist epack record: %w", serr)
			return res, err
		}
	}

	rt.mu.Lock()
	rt.turnCount++
	rt.mu.Unlock()
	return res, nil
}

// TurnCount reports the number of turns successfully persisted so far,
// for the /metrics endpoint's dashboard counters.
func (rt *Runtime) TurnCount() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.turnCount
}

// CheckHealth reports whether the runtime's required subsystems are
// initialized and ready to serve turns.
func (rt *Runtime) CheckHealth(ctx context.Context) error {
	if rt.Engine == nil {
		return fmt.Errorf("kernelruntime: turn engine not initialized")
	}
	if len(rt.Config.EpackSigningKey) == 0 {
		return fmt.Errorf("kernelruntime: epack signing key missing")
	}
	return nil
}
