package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

const folderColumns = `id, name, owner_id, parent_folder_id, size_bytes, is_starred, is_trashed, created_at, updated_at`

// PostgresRepository implements folder storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFolder(s scanner, withDepth bool) (*models.Folder, error) {
	f := &models.Folder{}
	var parent sql.NullString
	dest := []any{&f.ID, &f.Name, &f.OwnerID, &parent, &f.SizeBytes, &f.IsStarred, &f.IsTrashed, &f.CreatedAt, &f.UpdatedAt}
	if withDepth {
		dest = append(dest, &f.Depth)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if parent.Valid {
		f.ParentFolderID = &parent.String
	}
	return f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, folder *models.Folder) error {
	query :=
		`INSERT INTO folders (id, name, owner_id, parent_folder_id, is_starred)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING size_bytes, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		folder.ID, folder.Name, folder.OwnerID, folder.ParentFolderID, folder.IsStarred).
		Scan(&folder.SizeBytes, &folder.CreatedAt, &folder.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM folders WHERE id = $1`, id)
	f, err := scanFolder(row, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// Chain walks parent links upwards in a single recursive query.
func (r *PostgresRepository) Chain(ctx context.Context, id string, maxDepth int) ([]*models.Folder, error) {
	query :=
		`WITH RECURSIVE chain AS (
			SELECT ` + folderColumns + `, 0 AS depth
			FROM folders WHERE id = $1
			UNION ALL
			SELECT f.id, f.name, f.owner_id, f.parent_folder_id, f.size_bytes, f.is_starred, f.is_trashed, f.created_at, f.updated_at, c.depth + 1
			FROM folders f
			JOIN chain c ON f.id = c.parent_folder_id
			WHERE c.depth < $2
		)
		SELECT ` + folderColumns + `, depth FROM chain ORDER BY depth`

	return r.queryTree(ctx, query, id, maxDepth)
}

// Subtree walks child links downwards in a single recursive query.
func (r *PostgresRepository) Subtree(ctx context.Context, id string, maxDepth int) ([]*models.Folder, error) {
	query :=
		`WITH RECURSIVE subtree AS (
			SELECT ` + folderColumns + `, 0 AS depth
			FROM folders WHERE id = $1
			UNION ALL
			SELECT f.id, f.name, f.owner_id, f.parent_folder_id, f.size_bytes, f.is_starred, f.is_trashed, f.created_at, f.updated_at, s.depth + 1
			FROM folders f
			JOIN subtree s ON f.parent_folder_id = s.id
			WHERE s.depth < $2
		)
		SELECT ` + folderColumns + `, depth FROM subtree ORDER BY depth, id`

	return r.queryTree(ctx, query, id, maxDepth)
}

func (r *PostgresRepository) queryTree(ctx context.Context, query string, id string, maxDepth int) ([]*models.Folder, error) {
	rows, err := r.db.QueryContext(ctx, query, id, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows, true)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, common.ErrorNotFound
	}
	return result, nil
}

func (r *PostgresRepository) ListChildren(ctx context.Context, parentID string) ([]*models.Folder, error) {
	return r.list(ctx,
		`SELECT `+folderColumns+` FROM folders
		 WHERE parent_folder_id = $1 AND NOT is_trashed
		 ORDER BY name, id`, parentID)
}

func (r *PostgresRepository) ListStarred(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return r.list(ctx,
		`SELECT `+folderColumns+` FROM folders
		 WHERE owner_id = $1 AND is_starred AND NOT is_trashed
		 ORDER BY name, id`, ownerID)
}

func (r *PostgresRepository) ListTrashed(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return r.list(ctx,
		`SELECT `+folderColumns+` FROM folders
		 WHERE owner_id = $1 AND is_trashed
		 ORDER BY updated_at DESC, id`, ownerID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.Folder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select folders: %w", err)
	}
	defer rows.Close()

	var result []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows, false)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id string, name string) error {
	return r.execOne(ctx, `UPDATE folders SET name = $2, updated_at = now() WHERE id = $1`, id, name)
}

func (r *PostgresRepository) SetStarred(ctx context.Context, id string, starred bool) error {
	return r.execOne(ctx, `UPDATE folders SET is_starred = $2, updated_at = now() WHERE id = $1`, id, starred)
}

func (r *PostgresRepository) SetParent(ctx context.Context, id string, parentID string) error {
	return r.execOne(ctx, `UPDATE folders SET parent_folder_id = $2, updated_at = now() WHERE id = $1`, id, parentID)
}

func (r *PostgresRepository) SetTrashed(ctx context.Context, ids []string, trashed bool) (int64, error) {
	return r.execMany(ctx, `UPDATE folders SET is_trashed = $2, updated_at = now() WHERE id = ANY($1)`, ids, trashed)
}

func (r *PostgresRepository) AddSize(ctx context.Context, ids []string, delta int64) (int64, error) {
	return r.execMany(ctx, `UPDATE folders SET size_bytes = size_bytes + $2, updated_at = now() WHERE id = ANY($1)`, ids, delta)
}

func (r *PostgresRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	return r.execMany(ctx, `DELETE FROM folders WHERE id = ANY($1)`, ids)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) execMany(ctx context.Context, query string, ids []string, args ...any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, query, append([]any{ids}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
