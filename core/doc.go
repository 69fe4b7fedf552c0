// Package core provides the foundational domain types shared across the RLM
// engine. It defines the core abstractions for:
//
//   - Directives (the closed set of outcomes parsed from model output)
//   - Records (immutable per-turn trace entries)
//   - The error taxonomy separating recoverable from fatal failures
//   - Call budgeting for model invocations
//
// The package intentionally keeps implementation concerns (parsing, sandbox
// execution, orchestration, concrete model backends) out of scope so that
// leaf packages can depend on it without cycles. All exported identifiers
// include concise documentation to aid discoverability and external
// consumption.
package core
