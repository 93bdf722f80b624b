package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// TreeIndex answers ancestor and descendant queries over the folder forest.
// Every traversal is a single bounded query; anything deeper than maxDepth,
// a cycle, or a chain that does not end at a root is reported as
// common.ErrCorruptTree.
type TreeIndex struct {
	db       dbx.Transactor
	rm       repomanager.RepositoryManager
	maxDepth int
}

func NewTreeIndex(db dbx.Transactor, rm repomanager.RepositoryManager, cfg *config.Config) *TreeIndex {
	return &TreeIndex{db: db, rm: rm, maxDepth: cfg.MaxTreeDepth}
}

// AncestorsOf returns the ancestors of folderID, nearest first, ending at the
// root. The root has no ancestors.
func (t *TreeIndex) AncestorsOf(ctx context.Context, folderID string) ([]*models.Folder, error) {
	var chain []*models.Folder
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		var err error
		chain, err = t.chain(ctx, t.db.Conn(), folderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return chain[1:], nil
}

// PathOf returns the breadcrumb of an owned folder: root first, the folder last.
func (t *TreeIndex) PathOf(ctx context.Context, ownerID, folderID string) ([]*models.Folder, error) {
	var chain []*models.Folder
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		var err error
		chain, err = t.chain(ctx, t.db.Conn(), folderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if chain[0].OwnerID != ownerID {
		return nil, fmt.Errorf("folder %s: %w", folderID, common.ErrForbidden)
	}
	slices.Reverse(chain)
	return chain, nil
}

// SubtreeOf returns the closure of folderID read from one snapshot.
func (t *TreeIndex) SubtreeOf(ctx context.Context, folderID string) (*models.Subtree, error) {
	var sub *models.Subtree
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		return t.db.WithTx(ctx, dbx.Snapshot, func(ctx context.Context, tx dbx.DBTX) error {
			var err error
			sub, err = t.subtree(ctx, tx, folderID)
			return err
		})
	})
	return sub, err
}

// chain returns folderID followed by its ancestors.
func (t *TreeIndex) chain(ctx context.Context, db dbx.DBTX, folderID string) ([]*models.Folder, error) {
	chain, err := t.rm.Folders(db).Chain(ctx, folderID, t.maxDepth)
	if err != nil {
		return nil, fmt.Errorf("folder %s ancestors: %w", folderID, err)
	}

	top := chain[len(chain)-1]
	if !top.IsRoot() {
		return nil, fmt.Errorf("%w: folder %s does not reach a root within %d levels", common.ErrCorruptTree, folderID, t.maxDepth)
	}
	for _, f := range chain[1:] {
		if f.OwnerID != chain[0].OwnerID {
			return nil, fmt.Errorf("%w: folder %s has an ancestor owned by another user", common.ErrCorruptTree, folderID)
		}
	}
	return chain, nil
}

// subtree loads the closure of folderID: the folder and its descendants
// shallowest first, and every file under them.
func (t *TreeIndex) subtree(ctx context.Context, db dbx.DBTX, folderID string) (*models.Subtree, error) {
	list, err := t.rm.Folders(db).Subtree(ctx, folderID, t.maxDepth+1)
	if err != nil {
		return nil, fmt.Errorf("folder %s descendants: %w", folderID, err)
	}

	seen := make(map[string]struct{}, len(list))
	for _, f := range list {
		if f.Depth > t.maxDepth {
			return nil, fmt.Errorf("%w: folder %s is deeper than %d levels", common.ErrCorruptTree, folderID, t.maxDepth)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, fmt.Errorf("%w: cycle through folder %s", common.ErrCorruptTree, f.ID)
		}
		seen[f.ID] = struct{}{}
	}

	sub := &models.Subtree{Root: list[0], Folders: list}
	sub.Files, err = t.rm.Files(db).ListByFolders(ctx, sub.FolderIDs())
	if err != nil {
		return nil, fmt.Errorf("folder %s files: %w", folderID, err)
	}
	return sub, nil
}
