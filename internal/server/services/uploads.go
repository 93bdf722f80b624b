package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// UploadAdmission runs the two-phase upload: Initiate checks the quota and
// hands out a write handle, the client puts the bytes straight into the blob
// store, and Complete verifies the object before the file is committed.
//
// With a soft quota two concurrent initiates may both pass against the same
// available bytes. Complete does not re-check the quota.
type UploadAdmission struct {
	db        dbx.Transactor
	rm        repomanager.RepositoryManager
	sizes     *SizePropagator
	quota     *QuotaAccountant
	blobs     blobstore.Store
	log       logging.Logger
	metrics   *metrics.Metrics
	hardQuota bool
	uploadTTL time.Duration
	writeTTL  time.Duration
	now       func() time.Time
}

func NewUploadAdmission(db dbx.Transactor, rm repomanager.RepositoryManager, sizes *SizePropagator, quota *QuotaAccountant,
	blobs blobstore.Store, log logging.Logger, m *metrics.Metrics, cfg *config.Config) *UploadAdmission {
	return &UploadAdmission{
		db:        db,
		rm:        rm,
		sizes:     sizes,
		quota:     quota,
		blobs:     blobs,
		log:       log,
		metrics:   m,
		hardQuota: cfg.HardQuota,
		uploadTTL: cfg.UploadTTL,
		writeTTL:  cfg.WriteURLTTL,
		now:       time.Now,
	}
}

// newBlobKey returns users/<owner>/<uuid>[.ext].
func newBlobKey(ownerID, extension string) string {
	key := fmt.Sprintf("users/%s/%s", ownerID, uuid.New())
	if extension != "" {
		key += "." + extension
	}
	return key
}

// Initiate admits an upload of req.SizeBytes into req.ParentFolderID.
func (u *UploadAdmission) Initiate(ctx context.Context, ownerID string, req models.UploadRequest) (_ *models.UploadTicket, err error) {
	defer func() { err = dbx.Classify(err) }()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	parent, err := ownedFolder(ctx, u.rm.Folders(u.db.Conn()), ownerID, req.ParentFolderID)
	if err != nil {
		return nil, err
	}
	if parent.IsTrashed {
		return nil, fmt.Errorf("upload into folder %s: %w", parent.ID, common.ErrAlreadyTrashed)
	}

	if !u.hardQuota {
		if err := u.quota.admit(ctx, u.db.Conn(), ownerID, req.SizeBytes, false); err != nil {
			u.reject(err)
			return nil, err
		}
	}

	name, ext := models.SplitFileName(req.FileName)
	key := newBlobKey(ownerID, ext)

	handle, err := u.blobs.ReserveWrite(ctx, key, req.ContentType, req.SizeBytes, u.writeTTL)
	if err != nil {
		return nil, fmt.Errorf("error reserving blob write: %w", err)
	}

	upload := &models.PendingUpload{
		ID:             common.NewID(),
		OwnerID:        ownerID,
		BlobKey:        key,
		FileName:       name,
		Extension:      ext,
		ContentType:    req.ContentType,
		SizeBytes:      req.SizeBytes,
		ParentFolderID: parent.ID,
		Status:         models.UploadStatusInitiated,
		ExpiresAt:      u.now().Add(u.uploadTTL),
	}

	if u.hardQuota {
		err = u.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := u.quota.admit(ctx, tx, ownerID, req.SizeBytes, true); err != nil {
				return err
			}
			return u.rm.Uploads(tx).Create(ctx, upload)
		})
	} else {
		err = u.rm.Uploads(u.db.Conn()).Create(ctx, upload)
	}
	if err != nil {
		u.reject(err)
		return nil, fmt.Errorf("error creating pending upload: %w", err)
	}

	u.metrics.UploadInitiated()
	u.log.Info(ctx, "upload initiated", "upload_id", upload.ID, "owner_id", ownerID, "size_bytes", upload.SizeBytes)

	return &models.UploadTicket{UploadID: upload.ID, Handle: *handle}, nil
}

// Complete verifies the uploaded object and commits it as a file. The file,
// the size propagation and the status change are written in one
// transaction; on failure the upload stays initiated and can be retried.
// If the parent folder was trashed in the meantime the file is created
// trashed along with it.
func (u *UploadAdmission) Complete(ctx context.Context, ownerID, uploadID string) (_ *models.File, err error) {
	defer func() { err = dbx.Classify(err) }()

	upload, err := u.rm.Uploads(u.db.Conn()).GetByID(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", uploadID, err)
	}
	if upload.OwnerID != ownerID {
		return nil, fmt.Errorf("upload %s: %w", uploadID, common.ErrForbidden)
	}
	if upload.Status != models.UploadStatusInitiated {
		return nil, fmt.Errorf("upload %s: %w", uploadID, common.ErrAlreadyProcessed)
	}
	if upload.Expired(u.now()) {
		return nil, fmt.Errorf("upload %s expired at %s: %w", uploadID, upload.ExpiresAt.Format(time.RFC3339), common.ErrUploadNotFound)
	}

	info, err := u.blobs.Head(ctx, upload.BlobKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrObjectNotFound) {
			err = fmt.Errorf("upload %s: %w", uploadID, common.ErrUploadNotFound)
			u.reject(err)
			return nil, err
		}
		return nil, fmt.Errorf("error checking uploaded object: %w", err)
	}
	if info.SizeBytes != upload.SizeBytes {
		err = fmt.Errorf("%w: declared %d bytes, stored %d", common.ErrIntegrityMismatch, upload.SizeBytes, info.SizeBytes)
		u.reject(err)
		return nil, err
	}
	if info.ContentType != upload.ContentType {
		err = fmt.Errorf("%w: declared %q, stored %q", common.ErrIntegrityMismatch, upload.ContentType, info.ContentType)
		u.reject(err)
		return nil, err
	}

	file := &models.File{
		ID:             common.NewID(),
		Name:           upload.FileName,
		Extension:      upload.Extension,
		ContentType:    upload.ContentType,
		SizeBytes:      info.SizeBytes,
		OwnerID:        ownerID,
		ParentFolderID: upload.ParentFolderID,
		BlobKey:        upload.BlobKey,
	}

	err = u.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		parent, err := ownedFolder(ctx, u.rm.Folders(tx), ownerID, upload.ParentFolderID)
		if err != nil {
			return err
		}
		file.IsTrashed = parent.IsTrashed

		// claims the upload; a concurrent Complete or a sweep that already
		// claimed it makes this fail
		if err := u.rm.Uploads(tx).MarkCompleted(ctx, upload.ID, u.now()); err != nil {
			return err
		}
		if err := u.rm.Files(tx).Create(ctx, file); err != nil {
			return fmt.Errorf("error creating file: %w", err)
		}
		return u.sizes.applyDeltaTx(ctx, tx, file.ParentFolderID, file.SizeBytes)
	})
	if err != nil {
		return nil, err
	}

	u.metrics.UploadCompleted(file.SizeBytes)
	u.log.Info(ctx, "upload completed", "upload_id", upload.ID, "file_id", file.ID, "size_bytes", file.SizeBytes)
	return file, nil
}

// PurgeExpired removes up to limit pending uploads whose TTL passed at now.
// The records are claimed and deleted first, so a completion racing the
// sweep either commits before the claim (its blob is kept) or fails.
// Blobs of claimed uploads that never completed are then deleted
// best-effort; a failure leaves an orphaned object that is logged and
// counted.
func (u *UploadAdmission) PurgeExpired(ctx context.Context, now time.Time, limit int) (*models.PurgeStats, error) {
	var claimed []*models.PendingUpload
	err := u.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		claimed, err = u.rm.Uploads(tx).ClaimExpired(ctx, now, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error claiming expired uploads: %w", err)
	}

	stats := &models.PurgeStats{Expired: len(claimed), Deleted: len(claimed)}
	if len(claimed) == 0 {
		return stats, nil
	}

	var keys []string
	for _, p := range claimed {
		if p.Status == models.UploadStatusInitiated {
			keys = append(keys, p.BlobKey)
		}
	}

	stats.BlobFailures = deleteBlobs(ctx, u.blobs, u.log, u.metrics, keys)
	stats.BlobsDeleted = len(keys) - stats.BlobFailures
	return stats, nil
}

func (u *UploadAdmission) reject(err error) {
	switch {
	case errors.Is(err, common.ErrQuotaExceeded):
		u.metrics.UploadRejected("quota")
	case errors.Is(err, common.ErrIntegrityMismatch):
		u.metrics.UploadRejected("integrity")
	case errors.Is(err, common.ErrUploadNotFound):
		u.metrics.UploadRejected("missing")
	}
}
