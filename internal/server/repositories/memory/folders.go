package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

var (
	errForeignKey = errors.New("foreign key violation")
	errNegative   = errors.New("size_bytes check violation")
)

type folderRepository struct {
	s *Store
}

func (r *folderRepository) Create(ctx context.Context, folder *models.Folder) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.folders[folder.ID]; ok {
			return common.ErrAlreadyExists
		}
		if _, ok := st.users[folder.OwnerID]; !ok {
			return fmt.Errorf("db error: %w: owner %s", errForeignKey, folder.OwnerID)
		}
		if folder.ParentFolderID != nil {
			if _, ok := st.folders[*folder.ParentFolderID]; !ok {
				return fmt.Errorf("db error: %w: parent %s", errForeignKey, *folder.ParentFolderID)
			}
		} else {
			for _, f := range st.folders {
				if f.OwnerID == folder.OwnerID && f.ParentFolderID == nil {
					return common.ErrAlreadyExists
				}
			}
		}
		now := r.s.now()
		folder.SizeBytes = 0
		folder.CreatedAt, folder.UpdatedAt = now, now
		stored := *folder
		stored.Depth = 0
		st.folders[folder.ID] = stored
		return nil
	})
}

func (r *folderRepository) GetByID(ctx context.Context, id string) (*models.Folder, error) {
	var out *models.Folder
	err := r.s.read(ctx, func(st *state) error {
		f, ok := st.folders[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &f
		return nil
	})
	return out, err
}

// Chain stops at a dangling parent link, like the SQL join does.
func (r *folderRepository) Chain(ctx context.Context, id string, maxDepth int) ([]*models.Folder, error) {
	var out []*models.Folder
	err := r.s.read(ctx, func(st *state) error {
		f, ok := st.folders[id]
		if !ok {
			return common.ErrorNotFound
		}
		for depth := 0; ; depth++ {
			item := f
			item.Depth = depth
			out = append(out, &item)
			if f.ParentFolderID == nil || depth >= maxDepth {
				return nil
			}
			if f, ok = st.folders[*f.ParentFolderID]; !ok {
				return nil
			}
		}
	})
	return out, err
}

// Subtree expands one level at a time, so a cycle only grows the result up
// to maxDepth.
func (r *folderRepository) Subtree(ctx context.Context, id string, maxDepth int) ([]*models.Folder, error) {
	var out []*models.Folder
	err := r.s.read(ctx, func(st *state) error {
		start, ok := st.folders[id]
		if !ok {
			return common.ErrorNotFound
		}

		children := map[string][]models.Folder{}
		for _, f := range st.folders {
			if f.ParentFolderID != nil {
				children[*f.ParentFolderID] = append(children[*f.ParentFolderID], f)
			}
		}

		level := []models.Folder{start}
		for depth := 0; len(level) > 0; depth++ {
			slices.SortFunc(level, func(a, b models.Folder) int { return strings.Compare(a.ID, b.ID) })
			var next []models.Folder
			for _, f := range level {
				item := f
				item.Depth = depth
				out = append(out, &item)
				if depth < maxDepth {
					next = append(next, children[f.ID]...)
				}
			}
			level = next
		}
		return nil
	})
	return out, err
}

func (r *folderRepository) ListChildren(ctx context.Context, parentID string) ([]*models.Folder, error) {
	return r.filter(ctx, func(f *models.Folder) bool {
		return f.ParentFolderID != nil && *f.ParentFolderID == parentID && !f.IsTrashed
	}, byName)
}

func (r *folderRepository) ListStarred(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return r.filter(ctx, func(f *models.Folder) bool {
		return f.OwnerID == ownerID && f.IsStarred && !f.IsTrashed
	}, byName)
}

func (r *folderRepository) ListTrashed(ctx context.Context, ownerID string) ([]*models.Folder, error) {
	return r.filter(ctx, func(f *models.Folder) bool {
		return f.OwnerID == ownerID && f.IsTrashed
	}, byUpdatedDesc)
}

func byName(a, b *models.Folder) int {
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func byUpdatedDesc(a, b *models.Folder) int {
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (r *folderRepository) filter(ctx context.Context, keep func(*models.Folder) bool, cmp func(a, b *models.Folder) int) ([]*models.Folder, error) {
	var out []*models.Folder
	err := r.s.read(ctx, func(st *state) error {
		for _, f := range st.folders {
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

func (r *folderRepository) Rename(ctx context.Context, id string, name string) error {
	return r.update(ctx, id, func(f *models.Folder) { f.Name = name })
}

func (r *folderRepository) SetStarred(ctx context.Context, id string, starred bool) error {
	return r.update(ctx, id, func(f *models.Folder) { f.IsStarred = starred })
}

func (r *folderRepository) SetParent(ctx context.Context, id string, parentID string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.folders[parentID]; !ok {
			return fmt.Errorf("db error: %w: parent %s", errForeignKey, parentID)
		}
		return r.updateIn(st, id, func(f *models.Folder) { f.ParentFolderID = &parentID })
	})
}

func (r *folderRepository) update(ctx context.Context, id string, mutate func(*models.Folder)) error {
	return r.s.write(ctx, func(st *state) error {
		return r.updateIn(st, id, mutate)
	})
}

func (r *folderRepository) updateIn(st *state, id string, mutate func(*models.Folder)) error {
	f, ok := st.folders[id]
	if !ok {
		return common.ErrorNotFound
	}
	mutate(&f)
	f.UpdatedAt = r.s.now()
	st.folders[id] = f
	return nil
}

func (r *folderRepository) SetTrashed(ctx context.Context, ids []string, trashed bool) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		now := r.s.now()
		for _, id := range ids {
			if f, ok := st.folders[id]; ok {
				f.IsTrashed = trashed
				f.UpdatedAt = now
				st.folders[id] = f
				n++
			}
		}
		return nil
	})
	return n, err
}

// AddSize checks every row before touching any, as the CHECK constraint
// rejects the whole statement.
func (r *folderRepository) AddSize(ctx context.Context, ids []string, delta int64) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		for _, id := range ids {
			if f, ok := st.folders[id]; ok && f.SizeBytes+delta < 0 {
				return fmt.Errorf("db error: %w: folder %s", errNegative, id)
			}
		}
		now := r.s.now()
		for _, id := range ids {
			if f, ok := st.folders[id]; ok {
				f.SizeBytes += delta
				f.UpdatedAt = now
				st.folders[id] = f
				n++
			}
		}
		return nil
	})
	return n, err
}

// DeleteMany refuses to leave rows pointing at a deleted folder.
func (r *folderRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		doomed := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, ok := st.folders[id]; ok {
				doomed[id] = struct{}{}
			}
		}
		for id, f := range st.folders {
			if _, gone := doomed[id]; gone || f.ParentFolderID == nil {
				continue
			}
			if _, orphan := doomed[*f.ParentFolderID]; orphan {
				return fmt.Errorf("db error: %w: folder %s references %s", errForeignKey, id, *f.ParentFolderID)
			}
		}
		for id, f := range st.files {
			if _, orphan := doomed[f.ParentFolderID]; orphan {
				return fmt.Errorf("db error: %w: file %s references %s", errForeignKey, id, f.ParentFolderID)
			}
		}
		for id := range doomed {
			delete(st.folders, id)
		}
		n = int64(len(doomed))
		return nil
	})
	return n, err
}
