package folders

import (
	"context"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

// Repository stores folders. Tree queries return the start folder at depth 0
// and stop after maxDepth levels; callers decide what an over-deep result means.
type Repository interface {
	Create(ctx context.Context, folder *models.Folder) error
	GetByID(ctx context.Context, id string) (*models.Folder, error)

	// Chain returns the folder and its ancestors, nearest first.
	Chain(ctx context.Context, id string, maxDepth int) ([]*models.Folder, error)
	// Subtree returns the folder and all descendant folders, shallowest first.
	Subtree(ctx context.Context, id string, maxDepth int) ([]*models.Folder, error)

	ListChildren(ctx context.Context, parentID string) ([]*models.Folder, error)
	ListStarred(ctx context.Context, ownerID string) ([]*models.Folder, error)
	ListTrashed(ctx context.Context, ownerID string) ([]*models.Folder, error)

	Rename(ctx context.Context, id string, name string) error
	SetStarred(ctx context.Context, id string, starred bool) error
	SetParent(ctx context.Context, id string, parentID string) error
	SetTrashed(ctx context.Context, ids []string, trashed bool) (int64, error)

	// AddSize adds delta to size_bytes of every listed folder in one statement.
	AddSize(ctx context.Context, ids []string, delta int64) (int64, error)

	DeleteMany(ctx context.Context, ids []string) (int64, error)
}
