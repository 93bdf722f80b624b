package files

import (
	"context"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)

	// ListByFolders returns every file, trashed or not, under the given folders.
	ListByFolders(ctx context.Context, folderIDs []string) ([]*models.File, error)
	ListChildren(ctx context.Context, parentID string) ([]*models.File, error)
	ListStarred(ctx context.Context, ownerID string) ([]*models.File, error)
	ListTrashed(ctx context.Context, ownerID string) ([]*models.File, error)
	ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.File, error)

	Rename(ctx context.Context, id string, name string) error
	SetStarred(ctx context.Context, id string, starred bool) error
	SetParent(ctx context.Context, id string, parentID string) error
	SetTrashed(ctx context.Context, ids []string, trashed bool) (int64, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}
