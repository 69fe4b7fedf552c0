// Package engine drives the multi-turn loop at the heart of the system: feed
// the model its transcript plus a summary of sandbox state, classify each
// completion as a terminal answer, executable code or prose, execute code in
// the session's sandbox, and fold results back into the next prompt until a
// final directive lands or the iteration budget runs out.
//
// A session is processed strictly sequentially: one outstanding model
// completion or one executing fragment at a time. Independent sessions share
// nothing mutable and may run concurrently.
package engine
