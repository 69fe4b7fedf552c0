// Package sandbox implements the restricted evaluation environment that
// model-generated code runs in.
//
// The language is a small imperative expression language: assignments,
// if/else, for-in loops, arithmetic, strings, lists and maps. All callable
// operations come from an explicit capability table constructed per sandbox;
// there is no ambient global state. The table includes reflective
// introspection (vars, get) and the fixed sub-call entry point (llm), and
// unconditionally excludes filesystem, network and process access: restricted
// names are never bindable and any reference to them is rejected uniformly.
//
// A runtime fault inside executed code is caught and returned as an error the
// orchestration loop can fold back into the transcript; only failure to
// construct the environment itself is fatal.
package sandbox
