package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type fileRepository struct {
	s *Store
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.files[file.ID]; ok {
			return common.ErrAlreadyExists
		}
		if _, ok := st.folders[file.ParentFolderID]; !ok {
			return fmt.Errorf("db error: %w: parent %s", errForeignKey, file.ParentFolderID)
		}
		for _, f := range st.files {
			if f.BlobKey == file.BlobKey {
				return common.ErrAlreadyExists
			}
		}
		now := r.s.now()
		file.CreatedAt, file.UpdatedAt = now, now
		st.files[file.ID] = *file
		return nil
	})
}

func (r *fileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	var out *models.File
	err := r.s.read(ctx, func(st *state) error {
		f, ok := st.files[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &f
		return nil
	})
	return out, err
}

func (r *fileRepository) ListByFolders(ctx context.Context, folderIDs []string) ([]*models.File, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(folderIDs))
	for _, id := range folderIDs {
		set[id] = struct{}{}
	}
	return r.filter(ctx, func(f *models.File) bool {
		_, ok := set[f.ParentFolderID]
		return ok
	}, byFileID)
}

func (r *fileRepository) ListChildren(ctx context.Context, parentID string) ([]*models.File, error) {
	return r.filter(ctx, func(f *models.File) bool {
		return f.ParentFolderID == parentID && !f.IsTrashed
	}, byFileName)
}

func (r *fileRepository) ListStarred(ctx context.Context, ownerID string) ([]*models.File, error) {
	return r.filter(ctx, func(f *models.File) bool {
		return f.OwnerID == ownerID && f.IsStarred && !f.IsTrashed
	}, byFileName)
}

func (r *fileRepository) ListTrashed(ctx context.Context, ownerID string) ([]*models.File, error) {
	return r.filter(ctx, func(f *models.File) bool {
		return f.OwnerID == ownerID && f.IsTrashed
	}, byFileUpdatedDesc)
}

func (r *fileRepository) ListRecent(ctx context.Context, ownerID string, limit int) ([]*models.File, error) {
	out, err := r.filter(ctx, func(f *models.File) bool {
		return f.OwnerID == ownerID && !f.IsTrashed
	}, byFileUpdatedDesc)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func byFileID(a, b *models.File) int {
	return strings.Compare(a.ID, b.ID)
}

func byFileName(a, b *models.File) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func byFileUpdatedDesc(a, b *models.File) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (r *fileRepository) filter(ctx context.Context, keep func(*models.File) bool, cmp func(a, b *models.File) int) ([]*models.File, error) {
	var out []*models.File
	err := r.s.read(ctx, func(st *state) error {
		for _, f := range st.files {
			if keep(&f) {
				item := f
				out = append(out, &item)
			}
		}
		return nil
	})
	slices.SortFunc(out, cmp)
	return out, err
}

func (r *fileRepository) Rename(ctx context.Context, id string, name string) error {
	return r.update(ctx, id, func(f *models.File) { f.Name = name })
}

func (r *fileRepository) SetStarred(ctx context.Context, id string, starred bool) error {
	return r.update(ctx, id, func(f *models.File) { f.IsStarred = starred })
}

func (r *fileRepository) SetParent(ctx context.Context, id string, parentID string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.folders[parentID]; !ok {
			return fmt.Errorf("db error: %w: parent %s", errForeignKey, parentID)
		}
		return r.updateIn(st, id, func(f *models.File) { f.ParentFolderID = parentID })
	})
}

func (r *fileRepository) update(ctx context.Context, id string, mutate func(*models.File)) error {
	return r.s.write(ctx, func(st *state) error {
		return r.updateIn(st, id, mutate)
	})
}

func (r *fileRepository) updateIn(st *state, id string, mutate func(*models.File)) error {
	f, ok := st.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	mutate(&f)
	f.UpdatedAt = r.s.now()
	st.files[id] = f
	return nil
}

func (r *fileRepository) SetTrashed(ctx context.Context, ids []string, trashed bool) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		now := r.s.now()
		for _, id := range ids {
			if f, ok := st.files[id]; ok {
				f.IsTrashed = trashed
				f.UpdatedAt = now
				st.files[id] = f
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *fileRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		for _, id := range ids {
			if _, ok := st.files[id]; ok {
				delete(st.files, id)
				n++
			}
		}
		return nil
	})
	return n, err
}
