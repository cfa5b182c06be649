// Package trace records what a generation run is doing.
//
// Enable tracing via command-line flags:
//
//	proxygen generate --trace=- --trace-level=phase
//
// Implementations:
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to output (file/stderr), text or NDJSON
//   - RingTracer: circular buffer dumped when a run fails or is cancelled
//   - MultiTracer: stream + ring
//
// Levels gate scopes: LevelPhase shows run and phase spans, LevelDetail adds
// per-module indexing, LevelDebug adds per-type decisions.
//
// Tracers travel through the pipeline via context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopePhase, "resolve")
//	defer span.End("")
package trace
