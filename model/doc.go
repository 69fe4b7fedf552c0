// Package model defines the minimal backend contract the engine and the
// recursive dispatcher use to obtain completions, plus a deterministic mock
// for tests. Concrete adapters live in the subpackages (openai, anthropic);
// both the top-level loop and nested sub-calls go through the same interface
// so backends are interchangeable per call site.
package model
