package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

func ids[T interface{ *models.Folder | *models.File }](items []T) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := any(it).(type) {
		case *models.Folder:
			out = append(out, v.ID)
		case *models.File:
			out = append(out, v.ID)
		}
	}
	return out
}

func TestTreeIndex_AncestorsOf(t *testing.T) {
	h := newHarness(t)
	tr := h.abc(t)
	ctx := context.Background()

	got, err := h.tree.AncestorsOf(ctx, tr.b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tr.a.ID, tr.user.RootFolderID}, ids(got))

	got, err = h.tree.AncestorsOf(ctx, tr.user.RootFolderID)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = h.tree.AncestorsOf(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTreeIndex_PathOf(t *testing.T) {
	h := newHarness(t)
	tr := h.abc(t)
	ctx := context.Background()

	got, err := h.tree.PathOf(ctx, tr.user.ID, tr.b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tr.user.RootFolderID, tr.a.ID, tr.b.ID}, ids(got))

	_, err = h.tree.PathOf(ctx, "intruder", tr.b.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)
}

func TestTreeIndex_SubtreeOf(t *testing.T) {
	h := newHarness(t)
	tr := h.abc(t)
	sibling := h.mkdir(t, tr.user.ID, tr.user.RootFolderID, "S")

	sub, err := h.tree.SubtreeOf(context.Background(), tr.a.ID)
	require.NoError(t, err)

	assert.Equal(t, tr.a.ID, sub.Root.ID)
	assert.Equal(t, []string{tr.a.ID, tr.b.ID}, sub.FolderIDs())
	assert.Equal(t, []string{tr.c.ID}, sub.FileIDs())
	assert.NotContains(t, sub.FolderIDs(), sibling.ID)
	assert.Equal(t, int64(5), sub.FileBytes())
}

func TestTreeIndex_DepthCap(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.MaxTreeDepth = 2 })
	u := h.register(t, "deep@example.com")
	a := h.mkdir(t, u.ID, u.RootFolderID, "a")
	b := h.mkdir(t, u.ID, a.ID, "b")
	ctx := context.Background()

	// depth 2 is still fine
	_, err := h.tree.AncestorsOf(ctx, b.ID)
	require.NoError(t, err)
	_, err = h.tree.SubtreeOf(ctx, u.RootFolderID)
	require.NoError(t, err)

	c := h.mkdir(t, u.ID, b.ID, "c")

	_, err = h.tree.AncestorsOf(ctx, c.ID)
	assert.ErrorIs(t, err, common.ErrCorruptTree)
	_, err = h.tree.SubtreeOf(ctx, u.RootFolderID)
	assert.ErrorIs(t, err, common.ErrCorruptTree)
}

func TestTreeIndex_Cycle(t *testing.T) {
	h := newHarness(t)
	tr := h.abc(t)
	ctx := context.Background()

	// corrupt the data behind the services' back
	require.NoError(t, h.store.Folders(nil).SetParent(ctx, tr.a.ID, tr.b.ID))

	_, err := h.tree.SubtreeOf(ctx, tr.a.ID)
	assert.ErrorIs(t, err, common.ErrCorruptTree)
	_, err = h.tree.AncestorsOf(ctx, tr.b.ID)
	assert.ErrorIs(t, err, common.ErrCorruptTree)
}
