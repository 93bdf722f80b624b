package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// Lifecycle moves folders (with their whole subtree) and single files to the
// trash, back out of it, and deletes them for good. Each operation computes
// the closure once and applies every change in one snapshot transaction.
//
// Trash and restore never change sizes: trashed bytes still count against
// the quota until they are deleted forever.
type Lifecycle struct {
	db            dbx.Transactor
	rm            repomanager.RepositoryManager
	tree          *TreeIndex
	sizes         *SizePropagator
	blobs         blobstore.Store
	log           logging.Logger
	metrics       *metrics.Metrics
	restoreToRoot bool
}

func NewLifecycle(db dbx.Transactor, rm repomanager.RepositoryManager, tree *TreeIndex, sizes *SizePropagator,
	blobs blobstore.Store, log logging.Logger, m *metrics.Metrics, cfg *config.Config) *Lifecycle {
	return &Lifecycle{
		db:            db,
		rm:            rm,
		tree:          tree,
		sizes:         sizes,
		blobs:         blobs,
		log:           log,
		metrics:       m,
		restoreToRoot: cfg.RestoreToRoot,
	}
}

func (l *Lifecycle) run(ctx context.Context, op string, fn dbx.TxFunc) error {
	ctx = logging.ContextWith(ctx, "op", op)
	if err := l.db.WithTx(ctx, dbx.Snapshot, fn); err != nil {
		return err
	}
	l.metrics.Lifecycle(op)
	return nil
}

// Trash marks folderID and everything under it as trashed.
func (l *Lifecycle) Trash(ctx context.Context, ownerID, folderID string) error {
	return l.run(ctx, "trash", func(ctx context.Context, tx dbx.DBTX) error {
		return l.trashTx(ctx, tx, ownerID, folderID)
	})
}

// Restore clears the trashed flag on folderID and everything under it.
func (l *Lifecycle) Restore(ctx context.Context, ownerID, folderID string) error {
	return l.run(ctx, "restore", func(ctx context.Context, tx dbx.DBTX) error {
		return l.restoreTx(ctx, tx, ownerID, folderID)
	})
}

// DeleteForever removes a trashed folder, its subtree and their blobs.
// Blob deletion is best-effort and happens first; the metadata is removed
// and the former parent chain shrinks by the folder size in the same
// transaction, so a failure there leaves every record in place.
func (l *Lifecycle) DeleteForever(ctx context.Context, ownerID, folderID string) error {
	var released int64
	err := l.run(ctx, "delete", func(ctx context.Context, tx dbx.DBTX) error {
		folder, err := ownedFolder(ctx, l.rm.Folders(tx), ownerID, folderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return fmt.Errorf("delete folder %s: %w", folderID, common.ErrRootFolder)
		}
		if !folder.IsTrashed {
			return fmt.Errorf("delete folder %s: %w", folderID, common.ErrNotTrashed)
		}

		sub, err := l.tree.subtree(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if fileBytes := sub.FileBytes(); fileBytes != folder.SizeBytes {
			l.log.Warn(ctx, "folder size differs from its file bytes",
				"folder_id", folderID, "size_bytes", folder.SizeBytes, "file_bytes", fileBytes)
		}

		l.deleteBlobs(ctx, sub.BlobKeys())

		n, err := l.rm.Files(tx).DeleteMany(ctx, sub.FileIDs())
		if err != nil {
			return fmt.Errorf("error deleting files: %w", err)
		}
		if err := expectAffected("file delete", n, len(sub.Files)); err != nil {
			return err
		}

		ids := sub.FolderIDs()
		n, err = l.rm.Folders(tx).DeleteMany(ctx, ids)
		if err != nil {
			return fmt.Errorf("error deleting folders: %w", err)
		}
		if err := expectAffected("folder delete", n, len(ids)); err != nil {
			return err
		}

		released = folder.SizeBytes
		return l.sizes.applyDeltaTx(ctx, tx, *folder.ParentFolderID, -folder.SizeBytes)
	})
	if err == nil {
		l.metrics.Released(released)
	}
	return err
}

// TrashFile marks a single file as trashed.
func (l *Lifecycle) TrashFile(ctx context.Context, ownerID, fileID string) error {
	return l.run(ctx, "trash", func(ctx context.Context, tx dbx.DBTX) error {
		return l.trashFileTx(ctx, tx, ownerID, fileID)
	})
}

func (l *Lifecycle) RestoreFile(ctx context.Context, ownerID, fileID string) error {
	return l.run(ctx, "restore", func(ctx context.Context, tx dbx.DBTX) error {
		return l.restoreFileTx(ctx, tx, ownerID, fileID)
	})
}

// DeleteFileForever removes a trashed file and its blob and shrinks its
// parent chain by the file size.
func (l *Lifecycle) DeleteFileForever(ctx context.Context, ownerID, fileID string) error {
	var released int64
	err := l.run(ctx, "delete", func(ctx context.Context, tx dbx.DBTX) error {
		file, err := ownedFile(ctx, l.rm.Files(tx), ownerID, fileID)
		if err != nil {
			return err
		}
		if !file.IsTrashed {
			return fmt.Errorf("delete file %s: %w", fileID, common.ErrNotTrashed)
		}

		l.deleteBlobs(ctx, []string{file.BlobKey})

		n, err := l.rm.Files(tx).DeleteMany(ctx, []string{file.ID})
		if err != nil {
			return fmt.Errorf("error deleting file: %w", err)
		}
		if err := expectAffected("file delete", n, 1); err != nil {
			return err
		}

		released = file.SizeBytes
		return l.sizes.applyDeltaTx(ctx, tx, file.ParentFolderID, -file.SizeBytes)
	})
	if err == nil {
		l.metrics.Released(released)
	}
	return err
}

func (l *Lifecycle) trashTx(ctx context.Context, tx dbx.DBTX, ownerID, folderID string) error {
	folder, err := ownedFolder(ctx, l.rm.Folders(tx), ownerID, folderID)
	if err != nil {
		return err
	}
	if folder.IsRoot() {
		return fmt.Errorf("trash folder %s: %w", folderID, common.ErrRootFolder)
	}
	if folder.IsTrashed {
		return fmt.Errorf("trash folder %s: %w", folderID, common.ErrAlreadyTrashed)
	}

	sub, err := l.tree.subtree(ctx, tx, folderID)
	if err != nil {
		return err
	}
	return l.markSubtree(ctx, tx, sub, true)
}

func (l *Lifecycle) restoreTx(ctx context.Context, tx dbx.DBTX, ownerID, folderID string) error {
	folder, err := ownedFolder(ctx, l.rm.Folders(tx), ownerID, folderID)
	if err != nil {
		return err
	}
	if folder.IsRoot() {
		return fmt.Errorf("restore folder %s: %w", folderID, common.ErrRootFolder)
	}
	if !folder.IsTrashed {
		return fmt.Errorf("restore folder %s: %w", folderID, common.ErrNotTrashed)
	}

	sub, err := l.tree.subtree(ctx, tx, folderID)
	if err != nil {
		return err
	}
	if err := l.markSubtree(ctx, tx, sub, false); err != nil {
		return err
	}

	return l.reparentIfHidden(ctx, tx, ownerID, *folder.ParentFolderID, folder.SizeBytes,
		func(rootID string) error { return l.rm.Folders(tx).SetParent(ctx, folderID, rootID) })
}

func (l *Lifecycle) trashFileTx(ctx context.Context, tx dbx.DBTX, ownerID, fileID string) error {
	file, err := ownedFile(ctx, l.rm.Files(tx), ownerID, fileID)
	if err != nil {
		return err
	}
	if file.IsTrashed {
		return fmt.Errorf("trash file %s: %w", fileID, common.ErrAlreadyTrashed)
	}
	n, err := l.rm.Files(tx).SetTrashed(ctx, []string{fileID}, true)
	if err != nil {
		return fmt.Errorf("error trashing file: %w", err)
	}
	return expectAffected("file trash", n, 1)
}

func (l *Lifecycle) restoreFileTx(ctx context.Context, tx dbx.DBTX, ownerID, fileID string) error {
	file, err := ownedFile(ctx, l.rm.Files(tx), ownerID, fileID)
	if err != nil {
		return err
	}
	if !file.IsTrashed {
		return fmt.Errorf("restore file %s: %w", fileID, common.ErrNotTrashed)
	}
	n, err := l.rm.Files(tx).SetTrashed(ctx, []string{fileID}, false)
	if err != nil {
		return fmt.Errorf("error restoring file: %w", err)
	}
	if err := expectAffected("file restore", n, 1); err != nil {
		return err
	}

	return l.reparentIfHidden(ctx, tx, ownerID, file.ParentFolderID, file.SizeBytes,
		func(rootID string) error { return l.rm.Files(tx).SetParent(ctx, fileID, rootID) })
}

// reparentIfHidden moves a restored item to the owner's root when some folder
// on its parent chain is still trashed, so the item is visible again. Its
// bytes leave the old chain and join the root chain.
func (l *Lifecycle) reparentIfHidden(ctx context.Context, tx dbx.DBTX, ownerID, parentID string, size int64,
	setParent func(rootID string) error) error {
	if !l.restoreToRoot {
		return nil
	}

	chain, err := l.tree.chain(ctx, tx, parentID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: parent folder %s is missing", common.ErrCorruptTree, parentID)
		}
		return err
	}
	hidden := slices.ContainsFunc(chain, func(f *models.Folder) bool { return f.IsTrashed })
	if !hidden {
		return nil
	}

	root := chain[len(chain)-1]
	if err := l.sizes.applyDeltaTx(ctx, tx, parentID, -size); err != nil {
		return err
	}
	if err := setParent(root.ID); err != nil {
		return fmt.Errorf("error moving restored item to root: %w", err)
	}
	if err := l.sizes.applyDeltaTx(ctx, tx, root.ID, size); err != nil {
		return err
	}

	l.log.Info(ctx, "restored item moved to root", "owner_id", ownerID, "old_parent_id", parentID, "size_bytes", size)
	return nil
}

func (l *Lifecycle) markSubtree(ctx context.Context, tx dbx.DBTX, sub *models.Subtree, trashed bool) error {
	n, err := l.rm.Folders(tx).SetTrashed(ctx, sub.FolderIDs(), trashed)
	if err != nil {
		return fmt.Errorf("error updating folders: %w", err)
	}
	if err := expectAffected("folder trash flag", n, len(sub.Folders)); err != nil {
		return err
	}

	n, err = l.rm.Files(tx).SetTrashed(ctx, sub.FileIDs(), trashed)
	if err != nil {
		return fmt.Errorf("error updating files: %w", err)
	}
	return expectAffected("file trash flag", n, len(sub.Files))
}

// deleteBlobs never fails: undeletable blobs are logged and counted, and
// stay behind as orphans.
func (l *Lifecycle) deleteBlobs(ctx context.Context, keys []string) (failed int) {
	return deleteBlobs(ctx, l.blobs, l.log, l.metrics, keys)
}

func deleteBlobs(ctx context.Context, blobs blobstore.Store, log logging.Logger, m *metrics.Metrics, keys []string) (failed int) {
	if len(keys) == 0 {
		return 0
	}

	failures, err := blobs.BatchDelete(ctx, keys)
	switch {
	case len(failures) > 0:
		failed = len(failures)
	case err != nil:
		failed = len(keys)
	}
	if failed == 0 {
		return 0
	}

	failedKeys := make([]string, 0, len(failures))
	for k := range failures {
		failedKeys = append(failedKeys, k)
	}
	slices.Sort(failedKeys)
	log.Warn(ctx, "blob delete failed, objects left orphaned",
		"attempted", len(keys), "failed", failed, "keys", failedKeys, "error", err)
	m.BlobDeleteFailed(failed)
	return failed
}
