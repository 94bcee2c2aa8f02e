// Package observability provides OpenTelemetry tracing and RED metrics
// (rate, error, duration) for the kernel runtime.
//
// Initialize at process startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Wrap a unit of work and have its duration, error status, and count
// recorded automatically:
//
//	ctx, done := p.TrackOperation(ctx, "kernel.handle_turn")
//	err := doWork(ctx)
//	done(err)
package observability
