// Package services contains the storage engine: the folder tree index, size
// propagation, quota accounting, subtree lifecycle and upload admission, plus
// the folder, file and user operations built on them.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/folders"
)

// ownedFolder loads a folder and checks that ownerID owns it.
func ownedFolder(ctx context.Context, repo folders.Repository, ownerID, folderID string) (*models.Folder, error) {
	folder, err := repo.GetByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("folder %s: %w", folderID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("error loading folder: %w", err)
	}
	if folder.OwnerID != ownerID {
		return nil, fmt.Errorf("folder %s: %w", folderID, common.ErrForbidden)
	}
	return folder, nil
}

func ownedFile(ctx context.Context, repo files.Repository, ownerID, fileID string) (*models.File, error) {
	file, err := repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("file %s: %w", fileID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("error loading file: %w", err)
	}
	if file.OwnerID != ownerID {
		return nil, fmt.Errorf("file %s: %w", fileID, common.ErrForbidden)
	}
	return file, nil
}

// expectAffected turns a short batch update into ErrTransactionAborted: the
// rows were read in this transaction, so a missing one was removed concurrently.
func expectAffected(what string, got int64, want int) error {
	if got != int64(want) {
		return fmt.Errorf("%w: %s affected %d rows, expected %d", common.ErrTransactionAborted, what, got, want)
	}
	return nil
}
