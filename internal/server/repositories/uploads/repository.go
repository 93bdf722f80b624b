package uploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, upload *models.PendingUpload) error
	GetByID(ctx context.Context, id string) (*models.PendingUpload, error)

	// MarkCompleted moves an initiated upload that is still live at now to
	// completed. It fails with common.ErrAlreadyProcessed when the upload is
	// gone or not initiated anymore, and with common.ErrUploadNotFound when
	// it expired.
	MarkCompleted(ctx context.Context, id string, now time.Time) error

	// ReservedBytes sums declared sizes of the owner's initiated uploads
	// that have not expired at now.
	ReservedBytes(ctx context.Context, ownerID string, now time.Time) (int64, error)

	// ClaimExpired deletes up to limit uploads that expired at now and
	// returns them. Rows locked by an in-flight completion are skipped.
	ClaimExpired(ctx context.Context, now time.Time, limit int) ([]*models.PendingUpload, error)
}
