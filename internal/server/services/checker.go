package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// Checker recomputes folder sizes from file bytes and reports drift.
// It never repairs anything.
type Checker struct {
	db   dbx.Transactor
	rm   repomanager.RepositoryManager
	tree *TreeIndex
}

func NewChecker(db dbx.Transactor, rm repomanager.RepositoryManager, tree *TreeIndex) *Checker {
	return &Checker{db: db, rm: rm, tree: tree}
}

// Check walks the owner's whole tree from one snapshot.
func (c *Checker) Check(ctx context.Context, ownerID string) (*models.CheckReport, error) {
	var sub *models.Subtree
	var rootID string

	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		return c.db.WithTx(ctx, dbx.Snapshot, func(ctx context.Context, tx dbx.DBTX) error {
			user, err := c.rm.Users(tx).GetByID(ctx, ownerID)
			if err != nil {
				return fmt.Errorf("user %s: %w", ownerID, err)
			}
			rootID = user.RootFolderID
			sub, err = c.tree.subtree(ctx, tx, rootID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	actual := make(map[string]int64, len(sub.Folders))
	for _, f := range sub.Files {
		actual[f.ParentFolderID] += f.SizeBytes
	}
	// deepest first, so children are summed before their parent
	for i := len(sub.Folders) - 1; i > 0; i-- {
		f := sub.Folders[i]
		actual[*f.ParentFolderID] += actual[f.ID]
	}

	report := &models.CheckReport{
		OwnerID: ownerID,
		RootID:  rootID,
		Folders: len(sub.Folders),
		Files:   len(sub.Files),
	}
	for _, f := range sub.Folders {
		if f.SizeBytes != actual[f.ID] {
			report.Drift = append(report.Drift, models.SizeDrift{
				FolderID:    f.ID,
				StoredBytes: f.SizeBytes,
				ActualBytes: actual[f.ID],
			})
		}
	}
	slices.SortFunc(report.Drift, func(a, b models.SizeDrift) int { return strings.Compare(a.FolderID, b.FolderID) })
	return report, nil
}
