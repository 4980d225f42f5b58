// Package storage defines persistence for attempts, their placements,
// enumerations and offline artifacts.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rhyrak/go-allocate/internal/enumerate"
	"github.com/rhyrak/go-allocate/pkg/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Artifact formats.
const (
	FormatLP  = "lp"
	FormatMPS = "mps"
)

// Store persists everything an attempt produces.
type Store interface {
	CreateAttempt(ctx context.Context, a *model.Attempt) error
	UpdateAttempt(ctx context.Context, a *model.Attempt) error
	GetAttempt(ctx context.Context, id string) (*model.Attempt, error)
	ListAttempts(ctx context.Context) ([]*model.Attempt, error)

	// StorePlacements replaces the current and original placements of an attempt.
	StorePlacements(ctx context.Context, attemptID string, placements []model.Placement) error
	// Placements returns the current placements ordered by target.
	Placements(ctx context.Context, attemptID string) ([]model.Placement, error)
	// RevertToOriginal copies the original placements over the current ones.
	RevertToOriginal(ctx context.Context, attemptID string) error

	SaveEnumeration(ctx context.Context, attemptID string, rows []enumerate.Row) error
	// Enumeration returns the rows in category and index order.
	Enumeration(ctx context.Context, attemptID string) ([]enumerate.Row, error)
	DeleteEnumeration(ctx context.Context, attemptID string) error
	// PurgeEnumerations deletes the enumerations of finished attempts.
	PurgeEnumerations(ctx context.Context) (int, error)

	SaveArtifact(ctx context.Context, attemptID, format string, data []byte) error
	Artifact(ctx context.Context, attemptID, format string) ([]byte, error)
}
