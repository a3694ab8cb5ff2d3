// Package uuid provides time-ordered UUID v7 generation and validation for
// queued action ids.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// UUID v7 format: xxxxxxxx-xxxx-7xxx-yxxx-xxxxxxxxxxxx
// where the first 48 bits are a millisecond timestamp and y is one of
// [8, 9, a, b] (variant bits). The remaining bits are random.
var uuidV7Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-7[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v7. It panics if the random source fails, like
// uuid.New.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Validate returns an error if s is not a UUID v7.
func Validate(s string) error {
	if !uuidV7Regex.MatchString(s) {
		return fmt.Errorf("invalid UUID v7 format: %q", s)
	}
	return nil
}
