// Package store persists mandates for the AP2 service. Two implementations
// exist: Postgres for deployments and an in-memory registry used for local
// development and tests.
package store

import (
	"context"
	"errors"

	"github.com/leo2971998/trustagent/pkg/ap2"
)

var ErrNotFound = errors.New("mandate not found")

type Store interface {
	// CreateMandate inserts a new mandate record.
	CreateMandate(ctx context.Context, m ap2.Mandate) error
	// GetMandate returns the mandate by id, or ErrNotFound.
	GetMandate(ctx context.Context, id string) (ap2.Mandate, error)
	// ListMandates returns a user's mandates, most recent first, optionally
	// filtered by status.
	ListMandates(ctx context.Context, userID string, status *ap2.Status) ([]ap2.Mandate, error)
	// UpdateMandate replaces the stored record for m.ID, or ErrNotFound.
	UpdateMandate(ctx context.Context, m ap2.Mandate) error
}
