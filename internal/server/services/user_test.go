package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

type failingCreateFolders struct {
	folders.Repository
}

func (failingCreateFolders) Create(context.Context, *models.Folder) error {
	return errBoom
}

type failingCreateManager struct {
	repomanager.RepositoryManager
}

func (m failingCreateManager) Folders(db dbx.DBTX) folders.Repository {
	return failingCreateFolders{Repository: m.RepositoryManager.Folders(db)}
}

func TestUserService_Register(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.users.Register(ctx, models.Registration{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), u.StorageQuotaBytes)

	root := h.folder(t, u.RootFolderID)
	assert.True(t, root.IsRoot())
	assert.Equal(t, u.ID, root.OwnerID)
	assert.Zero(t, root.SizeBytes)

	_, err = h.users.Register(ctx, models.Registration{Name: "Ann 2", Email: "ann@example.com"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = h.users.Register(ctx, models.Registration{Name: "Bob", Email: "not-an-email"})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestUserService_RegisterRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.users.repomanager = failingCreateManager{RepositoryManager: h.store}

	_, err := h.users.Register(ctx, models.Registration{Name: "Second", Email: "second@example.com"})
	require.ErrorIs(t, err, errBoom)

	_, err = h.store.Users(nil).GetByEmail(ctx, "second@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound, "user insert rolled back")
}

func TestUserService_FindByEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := h.register(t, "ann@example.com")

	got, err := h.users.FindByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = h.users.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
