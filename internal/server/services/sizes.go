package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

// SizePropagator is the only writer of Folder.SizeBytes. A delta is applied to
// a folder and all of its ancestors with one UPDATE, so either every folder
// on the chain moves by the delta or none does.
type SizePropagator struct {
	db   dbx.Transactor
	rm   repomanager.RepositoryManager
	tree *TreeIndex
}

func NewSizePropagator(db dbx.Transactor, rm repomanager.RepositoryManager, tree *TreeIndex) *SizePropagator {
	return &SizePropagator{db: db, rm: rm, tree: tree}
}

// ApplyDelta adds delta to folderID and every ancestor up to the root.
// A zero delta does nothing, not even a lookup.
func (p *SizePropagator) ApplyDelta(ctx context.Context, folderID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	return p.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return p.applyDeltaTx(ctx, tx, folderID, delta)
	})
}

func (p *SizePropagator) applyDeltaTx(ctx context.Context, tx dbx.DBTX, folderID string, delta int64) error {
	if delta == 0 {
		return nil
	}

	chain, err := p.tree.chain(ctx, tx, folderID)
	if err != nil {
		return err
	}

	ids := make([]string, len(chain))
	for i, f := range chain {
		ids[i] = f.ID
	}

	n, err := p.rm.Folders(tx).AddSize(ctx, ids, delta)
	if err != nil {
		return fmt.Errorf("error propagating %d bytes from folder %s: %w", delta, folderID, err)
	}
	return expectAffected("size propagation", n, len(ids))
}
