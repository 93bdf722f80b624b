package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type uploadRepository struct {
	s *Store
}

func (r *uploadRepository) Create(ctx context.Context, upload *models.PendingUpload) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.uploads[upload.ID]; ok {
			return common.ErrAlreadyExists
		}
		now := r.s.now()
		upload.CreatedAt, upload.UpdatedAt = now, now
		st.uploads[upload.ID] = *upload
		return nil
	})
}

func (r *uploadRepository) GetByID(ctx context.Context, id string) (*models.PendingUpload, error) {
	var out *models.PendingUpload
	err := r.s.read(ctx, func(st *state) error {
		u, ok := st.uploads[id]
		if !ok {
			return common.ErrorNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *uploadRepository) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	return r.s.write(ctx, func(st *state) error {
		u, ok := st.uploads[id]
		if !ok || u.Status != models.UploadStatusInitiated {
			return common.ErrAlreadyProcessed
		}
		if u.Expired(now) {
			return common.ErrUploadNotFound
		}
		u.Status = models.UploadStatusCompleted
		u.UpdatedAt = r.s.now()
		st.uploads[id] = u
		return nil
	})
}

func (r *uploadRepository) ReservedBytes(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	var total int64
	err := r.s.read(ctx, func(st *state) error {
		for _, u := range st.uploads {
			if u.OwnerID == ownerID && u.Status == models.UploadStatusInitiated && u.ExpiresAt.After(now) {
				total += u.SizeBytes
			}
		}
		return nil
	})
	return total, err
}

func (r *uploadRepository) ClaimExpired(ctx context.Context, now time.Time, limit int) ([]*models.PendingUpload, error) {
	var out []*models.PendingUpload
	err := r.s.write(ctx, func(st *state) error {
		for _, u := range st.uploads {
			if u.Expired(now) {
				item := u
				out = append(out, &item)
			}
		}
		slices.SortFunc(out, func(a, b *models.PendingUpload) int {
			if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
				return c
			}
			return strings.Compare(a.ID, b.ID)
		})
		if len(out) > limit {
			out = out[:limit]
		}
		for _, u := range out {
			delete(st.uploads, u.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
