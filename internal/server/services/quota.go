package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// QuotaAccountant derives consumption from the root folder size; there is no
// separate counter that could drift from it.
//
// In hard mode the declared sizes of live initiated uploads are reserved as
// well, and admission holds the user row lock so concurrent initiates for the
// same owner are serialized.
type QuotaAccountant struct {
	db   dbx.Transactor
	rm   repomanager.RepositoryManager
	hard bool
	now  func() time.Time
}

func NewQuotaAccountant(db dbx.Transactor, rm repomanager.RepositoryManager, cfg *config.Config) *QuotaAccountant {
	return &QuotaAccountant{db: db, rm: rm, hard: cfg.HardQuota, now: time.Now}
}

// Available returns quota minus consumed bytes (minus reservations in hard mode).
// It may be negative when an over-committed soft quota was exceeded.
func (q *QuotaAccountant) Available(ctx context.Context, ownerID string) (int64, error) {
	var available int64
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		var err error
		_, _, available, err = q.measure(ctx, q.db.Conn(), ownerID, false)
		return err
	})
	return available, err
}

// Usage reports total, used and available bytes for ownerID.
func (q *QuotaAccountant) Usage(ctx context.Context, ownerID string) (*models.StorageUsage, error) {
	var usage *models.StorageUsage
	err := dbx.RetryRead(ctx, func(ctx context.Context) error {
		total, used, available, err := q.measure(ctx, q.db.Conn(), ownerID, false)
		if err != nil {
			return err
		}
		usage = &models.StorageUsage{
			TotalBytes:     total,
			UsedBytes:      used,
			AvailableBytes: max(available, 0),
		}
		if total > 0 {
			usage.UsagePercent = float64(used) * 100 / float64(total)
		}
		return nil
	})
	return usage, err
}

// admit fails with ErrQuotaExceeded when size does not fit. lock must only be
// set inside a transaction.
func (q *QuotaAccountant) admit(ctx context.Context, db dbx.DBTX, ownerID string, size int64, lock bool) error {
	_, _, available, err := q.measure(ctx, db, ownerID, lock)
	if err != nil {
		return err
	}
	if size > available {
		return fmt.Errorf("%w: %d bytes requested, %d available", common.ErrQuotaExceeded, size, max(available, 0))
	}
	return nil
}

func (q *QuotaAccountant) measure(ctx context.Context, db dbx.DBTX, ownerID string, lock bool) (total, used, available int64, err error) {
	users := q.rm.Users(db)
	get := users.GetByID
	if lock {
		get = users.GetByIDForUpdate
	}

	user, err := get(ctx, ownerID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("user %s: %w", ownerID, err)
	}
	root, err := q.rm.Folders(db).GetByID(ctx, user.RootFolderID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("root folder of %s: %w", ownerID, err)
	}

	total, used = user.StorageQuotaBytes, root.SizeBytes
	available = total - used
	if q.hard {
		reserved, err := q.rm.Uploads(db).ReservedBytes(ctx, ownerID, q.now())
		if err != nil {
			return 0, 0, 0, fmt.Errorf("reserved bytes of %s: %w", ownerID, err)
		}
		available -= reserved
	}
	return total, used, available, nil
}
