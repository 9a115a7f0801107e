package utils

import "github.com/google/uuid"

// GenerateID returns a fresh random identifier, used wherever the core
// needs an opaque correlation id (actor trace origins) rather
// than the monotonic integer ids spec.md mandates for actors and channels.
func GenerateID() string {
	return uuid.NewString()
}
