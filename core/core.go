package core

import "github.com/google/uuid"

// NewID returns a random unique identifier suitable for sessions and records.
func NewID() string { return uuid.NewString() }

// ContextVariable is the reserved namespace binding holding the original
// context text for a session. It is seeded at sandbox construction and is the
// only binding guaranteed to exist before any code has run.
const ContextVariable = "context"
