package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

const uploadColumns = `id, owner_id, blob_key, file_name, extension, content_type, size_bytes, parent_folder_id, status, created_at, updated_at, expires_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (*models.PendingUpload, error) {
	u := &models.PendingUpload{}
	err := s.Scan(&u.ID, &u.OwnerID, &u.BlobKey, &u.FileName, &u.Extension, &u.ContentType, &u.SizeBytes,
		&u.ParentFolderID, &u.Status, &u.CreatedAt, &u.UpdatedAt, &u.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, upload *models.PendingUpload) error {
	query :=
		`INSERT INTO pending_uploads (id, owner_id, blob_key, file_name, extension, content_type, size_bytes, parent_folder_id, status, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		upload.ID, upload.OwnerID, upload.BlobKey, upload.FileName, upload.Extension, upload.ContentType,
		upload.SizeBytes, upload.ParentFolderID, upload.Status, upload.ExpiresAt).
		Scan(&upload.CreatedAt, &upload.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.PendingUpload, error) {
	u, err := scanUpload(r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM pending_uploads WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// MarkCompleted is conditional on the status and the deadline, so two
// concurrent completions cannot both succeed and a claimed upload cannot be
// completed.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	query :=
		`UPDATE pending_uploads SET status = 'completed', updated_at = now()
		 WHERE id = $1 AND status = 'initiated' AND expires_at > $2`
	result, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark completed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM pending_uploads WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrAlreadyProcessed
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case status != models.UploadStatusInitiated:
		return common.ErrAlreadyProcessed
	default:
		return common.ErrUploadNotFound
	}
}

func (r *PostgresRepository) ReservedBytes(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	query :=
		`SELECT COALESCE(SUM(size_bytes), 0) FROM pending_uploads
		 WHERE owner_id = $1 AND status = 'initiated' AND expires_at > $2`

	var total int64
	if err := r.db.QueryRowContext(ctx, query, ownerID, now).Scan(&total); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return total, nil
}

// ClaimExpired deletes expired rows and returns them in one statement, so
// a row is either claimed here or completed, never both.
func (r *PostgresRepository) ClaimExpired(ctx context.Context, now time.Time, limit int) ([]*models.PendingUpload, error) {
	query :=
		`DELETE FROM pending_uploads
		 WHERE id IN (
			SELECT id FROM pending_uploads
			WHERE expires_at <= $1
			ORDER BY expires_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING ` + uploadColumns

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingUpload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
