// Package storage keeps generated lookup tables so the latest one can be
// served by name after generation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/HatiCode/dosimap/pkg/lut"
)

// ErrInvalidName is returned for empty or unsafe table names.
var ErrInvalidName = errors.New("invalid table name")

// Snapshot is one generated table together with where it came from.
type Snapshot struct {
	Name        string    `json:"name"`
	GeneratedAt time.Time `json:"generatedAt"`

	// Source is the calibration source kind the table was built from.
	Source string `json:"source,omitempty"`

	// Samples is the size of the training set.
	Samples int `json:"samples"`

	Table lut.Table `json:"table"`
}

// Store keeps the latest snapshot per table name.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, name string) (Snapshot, bool, error)
}

// ValidateName accepts letters, digits, '-' and '_'. Names end up in Redis
// keys and C identifiers.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("%w %q: only alphanumeric, hyphens, and underscores allowed", ErrInvalidName, name)
		}
	}
	return nil
}

// clone detaches the cell slice so stored snapshots stay immutable.
func clone(s Snapshot) Snapshot {
	s.Table.Values = slices.Clone(s.Table.Values)
	return s
}
