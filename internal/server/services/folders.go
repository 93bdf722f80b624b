package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

// FolderService implements folder creation, patching and listings.
type FolderService struct {
	db        dbx.Transactor
	rm        repomanager.RepositoryManager
	lifecycle *Lifecycle
}

func NewFolderService(db dbx.Transactor, rm repomanager.RepositoryManager, lifecycle *Lifecycle) *FolderService {
	return &FolderService{db: db, rm: rm, lifecycle: lifecycle}
}

// CreateFolder creates an empty folder under an owned, live parent.
func (s *FolderService) CreateFolder(ctx context.Context, ownerID, parentID, name string) (_ *models.Folder, err error) {
	defer func() { err = dbx.Classify(err) }()

	if err := models.ValidateFolderName(name); err != nil {
		return nil, err
	}

	repo := s.rm.Folders(s.db.Conn())
	parent, err := ownedFolder(ctx, repo, ownerID, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsTrashed {
		return nil, fmt.Errorf("create in folder %s: %w", parentID, common.ErrAlreadyTrashed)
	}

	folder := &models.Folder{
		ID:             common.NewID(),
		Name:           name,
		OwnerID:        ownerID,
		ParentFolderID: &parent.ID,
	}
	if err := repo.Create(ctx, folder); err != nil {
		return nil, fmt.Errorf("error creating folder: %w", err)
	}
	return folder, nil
}

// UpdateFolder applies patch in one transaction. The root folder cannot be
// patched. Trashed is handled by the lifecycle manager so it covers the
// whole subtree.
func (s *FolderService) UpdateFolder(ctx context.Context, ownerID, folderID string, patch models.FolderPatch) (*models.Folder, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var out *models.Folder
	err := s.db.WithTx(ctx, dbx.Snapshot, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Folders(tx)
		folder, err := ownedFolder(ctx, repo, ownerID, folderID)
		if err != nil {
			return err
		}
		if folder.IsRoot() {
			return fmt.Errorf("update folder %s: %w", folderID, common.ErrRootFolder)
		}

		if patch.Name != nil {
			if err := repo.Rename(ctx, folderID, *patch.Name); err != nil {
				return fmt.Errorf("error renaming folder: %w", err)
			}
		}
		if patch.Starred != nil {
			if err := repo.SetStarred(ctx, folderID, *patch.Starred); err != nil {
				return fmt.Errorf("error starring folder: %w", err)
			}
		}
		if patch.Trashed != nil {
			if *patch.Trashed {
				err = s.lifecycle.trashTx(ctx, tx, ownerID, folderID)
			} else {
				err = s.lifecycle.restoreTx(ctx, tx, ownerID, folderID)
			}
			if err != nil {
				return err
			}
		}

		out, err = repo.GetByID(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetFolderContent lists the live direct children of an owned folder.
func (s *FolderService) GetFolderContent(ctx context.Context, ownerID, folderID string) (*models.FolderContent, error) {
	var content *models.FolderContent
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		conn := s.db.Conn()
		folder, err := ownedFolder(ctx, s.rm.Folders(conn), ownerID, folderID)
		if err != nil {
			return err
		}
		if folder.IsTrashed {
			return fmt.Errorf("folder %s: %w", folderID, common.ErrAlreadyTrashed)
		}

		c := &models.FolderContent{Folder: folder}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			c.Folders, err = s.rm.Folders(conn).ListChildren(gctx, folderID)
			return err
		})
		g.Go(func() (err error) {
			c.Files, err = s.rm.Files(conn).ListChildren(gctx, folderID)
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("error listing folder %s: %w", folderID, err)
		}
		content = c
		return nil
	})
	return content, err
}

// GetTrash lists the owner's trash roots: trashed items whose parent folder
// is not trashed itself. Everything else in the trash is reachable through them.
func (s *FolderService) GetTrash(ctx context.Context, ownerID string) (*models.ItemList, error) {
	var trashedFolders []*models.Folder
	var trashedFiles []*models.File

	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		conn := s.db.Conn()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			trashedFolders, err = s.rm.Folders(conn).ListTrashed(gctx, ownerID)
			return err
		})
		g.Go(func() (err error) {
			trashedFiles, err = s.rm.Files(conn).ListTrashed(gctx, ownerID)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("error listing trash: %w", err)
	}

	inTrash := make(map[string]struct{}, len(trashedFolders))
	for _, f := range trashedFolders {
		inTrash[f.ID] = struct{}{}
	}

	list := &models.ItemList{}
	for _, f := range trashedFolders {
		if f.ParentFolderID == nil {
			continue
		}
		if _, ok := inTrash[*f.ParentFolderID]; !ok {
			list.Folders = append(list.Folders, f)
		}
	}
	for _, f := range trashedFiles {
		if _, ok := inTrash[f.ParentFolderID]; !ok {
			list.Files = append(list.Files, f)
		}
	}
	return list, nil
}

// GetStarred lists starred items that are not in the trash.
func (s *FolderService) GetStarred(ctx context.Context, ownerID string) (*models.ItemList, error) {
	list := &models.ItemList{}
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		conn := s.db.Conn()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			list.Folders, err = s.rm.Folders(conn).ListStarred(gctx, ownerID)
			return err
		})
		g.Go(func() (err error) {
			list.Files, err = s.rm.Files(conn).ListStarred(gctx, ownerID)
			return err
		})
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("error listing starred items: %w", err)
	}
	return list, nil
}
