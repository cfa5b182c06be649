// Package diag defines the diagnostic model shared by all generation phases.
//
// # Purpose
//
//   - Provide deterministic data structures that capture findings produced
//     while indexing client symbols, building the model, deciding sharing and
//     emitting units.
//   - Offer light-weight utilities (Reporter, Bag) that let producers emit
//     diagnostics without coupling to storage or formatting.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - Severity – Info, Warning, Error (severity.go).
//   - Code – numeric identifier with a stable string form (codes.go).
//   - Subject – qualified type identity the finding is about, empty for
//     run-level findings.
//   - Message – short, actionable text.
//   - Location – optional module path / source document.
//   - Notes – optional secondary context.
//
// # Collection
//
// Bag is the single mutable structure shared by a run. Record serializes
// concurrent producers; Drain returns diagnostics in record order. A Bag never
// aborts a run: the caller decides what an error-severity diagnostic means,
// usually through ExitStatus.
//
// Rendering lives in internal/diagfmt.
package diag
