package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// ListLoaders returns loaders whose name starts with namePrefix, ordered by name.
	ListLoaders(ctx context.Context, namePrefix string) ([]*models.Loader, error)
	GetLoaderByName(ctx context.Context, name string) (*models.Loader, error)
	GetLoadersByPrefix(ctx context.Context, keyPrefix string) ([]*models.Loader, error)
	CreateLoader(ctx context.Context, loader *models.Loader) error
	SetLoaderEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	// RekeyLoader sets a new key and enables the loader atomically.
	RekeyLoader(ctx context.Context, id uuid.UUID, keyPrefix, keyHash string) error
	UpdateLoaderLastSeen(ctx context.Context, id uuid.UUID, agentName string, at time.Time) error
}
