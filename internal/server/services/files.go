package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// FileService implements file patching, downloads and the recent listing.
type FileService struct {
	db        dbx.Transactor
	rm        repomanager.RepositoryManager
	lifecycle *Lifecycle
	blobs     blobstore.Store
	readTTL   time.Duration
}

func NewFileService(db dbx.Transactor, rm repomanager.RepositoryManager, lifecycle *Lifecycle,
	blobs blobstore.Store, cfg *config.Config) *FileService {
	return &FileService{db: db, rm: rm, lifecycle: lifecycle, blobs: blobs, readTTL: cfg.ReadURLTTL}
}

// UpdateFile applies patch in one transaction; the extension is kept on rename.
func (s *FileService) UpdateFile(ctx context.Context, ownerID, fileID string, patch models.FilePatch) (*models.File, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var out *models.File
	err := s.db.WithTx(ctx, dbx.Snapshot, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Files(tx)
		if _, err := ownedFile(ctx, repo, ownerID, fileID); err != nil {
			return err
		}

		if patch.Name != nil {
			if err := repo.Rename(ctx, fileID, *patch.Name); err != nil {
				return fmt.Errorf("error renaming file: %w", err)
			}
		}
		if patch.Starred != nil {
			if err := repo.SetStarred(ctx, fileID, *patch.Starred); err != nil {
				return fmt.Errorf("error starring file: %w", err)
			}
		}
		if patch.Trashed != nil {
			var err error
			if *patch.Trashed {
				err = s.lifecycle.trashFileTx(ctx, tx, ownerID, fileID)
			} else {
				err = s.lifecycle.restoreFileTx(ctx, tx, ownerID, fileID)
			}
			if err != nil {
				return err
			}
		}

		var err error
		out, err = repo.GetByID(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadURL returns a presigned GET for an owned file. Trashed files can
// still be downloaded.
func (s *FileService) DownloadURL(ctx context.Context, ownerID, fileID string) (_ string, err error) {
	defer func() { err = dbx.Classify(err) }()

	file, err := ownedFile(ctx, s.rm.Files(s.db.Conn()), ownerID, fileID)
	if err != nil {
		return "", err
	}
	url, err := s.blobs.ReadURL(ctx, file.BlobKey, s.readTTL)
	if err != nil {
		return "", fmt.Errorf("error signing download: %w", err)
	}
	return url, nil
}

// RecentFiles returns up to limit live files, newest first, grouped by the
// UTC day they were last updated.
func (s *FileService) RecentFiles(ctx context.Context, ownerID string, limit int) ([]models.RecentGroup, error) {
	var list []*models.File
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		var err error
		list, err = s.rm.Files(s.db.Conn()).ListRecent(ctx, ownerID, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing recent files: %w", err)
	}

	var groups []models.RecentGroup
	for _, f := range list {
		u := f.UpdatedAt.UTC()
		day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(groups); n == 0 || !groups[n-1].Day.Equal(day) {
			groups = append(groups, models.RecentGroup{Day: day})
		}
		groups[len(groups)-1].Files = append(groups[len(groups)-1].Files, f)
	}
	return groups, nil
}
