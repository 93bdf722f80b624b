// Package memory is an in-process metadata store with the same repository
// contracts as the PostgreSQL one. Transactions work on a private copy of the
// data that replaces the committed copy on success, so a failed unit of work
// leaves nothing behind. Writers are serialized.
package memory

import (
	"context"
	"database/sql"
	"maps"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/uploads"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/users"
)

type state struct {
	users   map[string]models.User
	folders map[string]models.Folder
	files   map[string]models.File
	uploads map[string]models.PendingUpload
}

func newState() *state {
	return &state{
		users:   map[string]models.User{},
		folders: map[string]models.Folder{},
		files:   map[string]models.File{},
		uploads: map[string]models.PendingUpload{},
	}
}

func (s *state) clone() *state {
	c := newState()
	maps.Copy(c.users, s.users)
	maps.Copy(c.folders, s.folders)
	maps.Copy(c.files, s.files)
	maps.Copy(c.uploads, s.uploads)
	return c
}

type txKey struct {
	store *Store
}

// Store implements dbx.Transactor and repomanager.RepositoryManager.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *state
	now     func() time.Time
}

type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{data: newState(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Conn returns nil: repositories find their data through the context.
func (s *Store) Conn() dbx.DBTX {
	return nil
}

// WithTx runs fn against a private copy of the data. A nested call joins the
// surrounding transaction. Isolation options are ignored since writers never
// overlap.
func (s *Store) WithTx(ctx context.Context, _ *sql.TxOptions, fn dbx.TxFunc) error {
	if _, ok := s.txState(ctx); ok {
		return fn(ctx, nil)
	}
	if err := ctx.Err(); err != nil {
		return dbx.Classify(err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	work := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{s}, work), nil); err != nil {
		return dbx.Classify(err)
	}
	if err := ctx.Err(); err != nil {
		return dbx.Classify(err)
	}

	s.mu.Lock()
	s.data = work
	s.mu.Unlock()
	return nil
}

func (s *Store) txState(ctx context.Context) (*state, bool) {
	st, ok := ctx.Value(txKey{s}).(*state)
	return st, ok
}

// read runs fn against the transaction copy, or the committed data. Like a
// driver, a read outside a transaction fails with the raw context error.
func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if st, ok := s.txState(ctx); ok {
		return fn(st)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// write runs fn in the surrounding transaction or in its own one, which
// gives single statements their all-or-nothing behaviour.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if st, ok := s.txState(ctx); ok {
		return fn(st)
	}
	return s.WithTx(ctx, nil, func(ctx context.Context, _ dbx.DBTX) error {
		st, _ := s.txState(ctx)
		return fn(st)
	})
}

func (s *Store) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (s *Store) Users(dbx.DBTX) users.Repository {
	return &userRepository{s: s}
}

func (s *Store) Folders(dbx.DBTX) folders.Repository {
	return &folderRepository{s: s}
}

func (s *Store) Files(dbx.DBTX) files.Repository {
	return &fileRepository{s: s}
}

func (s *Store) Uploads(dbx.DBTX) uploads.Repository {
	return &uploadRepository{s: s}
}
