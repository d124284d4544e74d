package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidationSkip marks a record excluded for missing or invalid fields.
	ErrValidationSkip = errors.New("validation skip")
	// ErrPersistence marks a record the store refused to write.
	ErrPersistence = errors.New("persistence error")
)

// Skip is the Normalizer's rejection of one input entry.
type Skip struct {
	Ordinal int      `json:"index"`
	Missing []string `json:"missingFields,omitempty"`
	Reason  string   `json:"reason"`
}

func newMissingSkip(ordinal int, missing []string) *Skip {
	return &Skip{
		Ordinal: ordinal,
		Missing: missing,
		Reason:  "missing required fields: " + strings.Join(missing, ", "),
	}
}

func (s *Skip) Error() string {
	return fmt.Sprintf("entry %d skipped: %s", s.Ordinal, s.Reason)
}

func (s *Skip) Unwrap() error { return ErrValidationSkip }

// persistenceError wraps a store failure for one record.
func persistenceError(ordinal int, err error) error {
	return fmt.Errorf("%w: entry %d: %v", ErrPersistence, ordinal, err)
}
