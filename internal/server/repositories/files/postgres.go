package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

const fileColumns = `id, name, extension, content_type, size_bytes, owner_id, parent_folder_id, blob_key, is_starred, is_trashed, created_at, updated_at`

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	f := &models.File{}
	err := s.Scan(&f.ID, &f.Name, &f.Extension, &f.ContentType, &f.SizeBytes, &f.OwnerID,
		&f.ParentFolderID, &f.BlobKey, &f.IsStarred, &f.IsTrashed, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Create inserts a committed file. The row id and blob key are chosen by the caller.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (id, name, extension, content_type, size_bytes, owner_id, parent_folder_id, blob_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		file.ID, file.Name, file.Extension, file.ContentType, file.SizeBytes, file.OwnerID, file.ParentFolderID, file.BlobKey).
		Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) ListByFolders(ctx context.Context, folderIDs []string) ([]*models.File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE parent_folder_id = ANY($1) ORDER BY id`, folderIDs)
}

func (r *PostgresRepository) ListChildren(ctx context.Context, parentID string) ([]*models.File, error) {
	return r.list(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE parent_folder_id = $1 AND NOT is_trashed
		 ORDER BY name, id`, parentID)
}

func (r *PostgresRepository) ListStarred(ctx context.Context, ownerID string) ([]*models.File, error) {
	return r.list(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE owner_id = $1 AND is_starred AND NOT is_trashed
		 ORDER BY name, id`, ownerID)
}

func (r *PostgresRepository) ListTrashed(ctx context.Context, ownerID string) ([]*models.File, error) {
	return r.list(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE owner_id = $1 AND is_trashed
		 ORDER BY updated_at DESC, id`, ownerID)
}

func (r *PostgresRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.File, error) {
	return r.list(ctx,
		`SELECT `+fileColumns+` FROM files
		 WHERE owner_id = $1 AND NOT is_trashed
		 ORDER BY updated_at DESC, id
		 LIMIT $2`, ownerID, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id string, name string) error {
	return r.execOne(ctx, `UPDATE files SET name = $2, updated_at = now() WHERE id = $1`, id, name)
}

func (r *PostgresRepository) SetStarred(ctx context.Context, id string, starred bool) error {
	return r.execOne(ctx, `UPDATE files SET is_starred = $2, updated_at = now() WHERE id = $1`, id, starred)
}

func (r *PostgresRepository) SetParent(ctx context.Context, id string, parentID string) error {
	return r.execOne(ctx, `UPDATE files SET parent_folder_id = $2, updated_at = now() WHERE id = $1`, id, parentID)
}

func (r *PostgresRepository) SetTrashed(ctx context.Context, ids []string, trashed bool) (int64, error) {
	return r.execMany(ctx, `UPDATE files SET is_trashed = $2, updated_at = now() WHERE id = ANY($1)`, ids, trashed)
}

func (r *PostgresRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	return r.execMany(ctx, `DELETE FROM files WHERE id = ANY($1)`, ids)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) execMany(ctx context.Context, query string, ids []string, args ...any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx, query, append([]any{ids}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
