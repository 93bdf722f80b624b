package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/folders"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/memory"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

var errBoom = errors.New("boom")

// --- fake blob store ---

type fakeBlobs struct {
	mu        sync.Mutex
	objects   map[string]blobstore.ObjectInfo
	reserved  []string
	deleted   [][]string
	deleteErr error
	failKeys  map[string]bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]blobstore.ObjectInfo{}, failKeys: map[string]bool{}}
}

func (f *fakeBlobs) put(key string, size int64, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = blobstore.ObjectInfo{SizeBytes: size, ContentType: contentType}
}

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeBlobs) attempted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.deleted {
		out = append(out, batch...)
	}
	slices.Sort(out)
	return out
}

func (f *fakeBlobs) ReserveWrite(_ context.Context, key, contentType string, size int64, ttl time.Duration) (*models.WriteHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved = append(f.reserved, key)
	return &models.WriteHandle{
		URL:     "http://blobs/" + key,
		Method:  "PUT",
		Headers: map[string]string{"Content-Type": contentType, "Content-Length": fmt.Sprint(size)},
	}, nil
}

func (f *fakeBlobs) Head(_ context.Context, key string) (*blobstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrObjectNotFound, key)
	}
	return &info, nil
}

func (f *fakeBlobs) ReadURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("http://blobs/%s?ttl=%s", key, ttl), nil
}

func (f *fakeBlobs) BatchDelete(_ context.Context, keys []string) (map[string]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, slices.Clone(keys))
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	failures := map[string]error{}
	for _, k := range keys {
		if f.failKeys[k] {
			failures[k] = errBoom
			continue
		}
		delete(f.objects, k)
	}
	return failures, nil
}

// --- failure injection ---

type failingFolders struct {
	folders.Repository
	deleteErr error
}

func (f failingFolders) DeleteMany(context.Context, []string) (int64, error) {
	return 0, f.deleteErr
}

// failingManager breaks folder deletes, after blobs and files are already gone.
type failingManager struct {
	repomanager.RepositoryManager
	deleteErr error
}

func (m failingManager) Folders(db dbx.DBTX) folders.Repository {
	return failingFolders{Repository: m.RepositoryManager.Folders(db), deleteErr: m.deleteErr}
}

// --- clock ---

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now ticks one second per call so UpdatedAt values are distinct.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- harness ---

type harness struct {
	cfg     *config.Config
	clock   *testClock
	store   *memory.Store
	blobs   *fakeBlobs
	metrics *metrics.Metrics

	tree      *TreeIndex
	sizes     *SizePropagator
	quota     *QuotaAccountant
	lifecycle *Lifecycle
	uploads   *UploadAdmission
	folders   *FolderService
	files     *FileService
	users     *UserService
	checker   *Checker
}

func newHarness(t *testing.T, tweaks ...func(*config.Config)) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DefaultQuotaBytes = 100
	for _, fn := range tweaks {
		fn(cfg)
	}
	require.NoError(t, cfg.Validate())

	h := &harness{
		cfg:     cfg,
		clock:   &testClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
		blobs:   newFakeBlobs(),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.store = memory.New(memory.WithClock(h.clock.Now))
	h.wire(h.store)
	return h
}

// wire builds the services over rm; the transactor is always the store.
func (h *harness) wire(rm repomanager.RepositoryManager) {
	log := logging.Nop()
	h.tree = NewTreeIndex(h.store, rm, h.cfg)
	h.sizes = NewSizePropagator(h.store, rm, h.tree)
	h.quota = NewQuotaAccountant(h.store, rm, h.cfg)
	h.quota.now = h.clock.Now
	h.lifecycle = NewLifecycle(h.store, rm, h.tree, h.sizes, h.blobs, log, h.metrics, h.cfg)
	h.uploads = NewUploadAdmission(h.store, rm, h.sizes, h.quota, h.blobs, log, h.metrics, h.cfg)
	h.uploads.now = h.clock.Now
	h.folders = NewFolderService(h.store, rm, h.lifecycle)
	h.files = NewFileService(h.store, rm, h.lifecycle, h.blobs, h.cfg)
	h.users = NewUserService(h.store, rm, h.quota, h.cfg)
	h.checker = NewChecker(h.store, rm, h.tree)
}

func (h *harness) register(t *testing.T, email string) *models.User {
	t.Helper()
	u, err := h.users.Register(context.Background(), models.Registration{Name: "Test", Email: email})
	require.NoError(t, err)
	return u
}

func (h *harness) mkdir(t *testing.T, ownerID, parentID, name string) *models.Folder {
	t.Helper()
	f, err := h.folders.CreateFolder(context.Background(), ownerID, parentID, name)
	require.NoError(t, err)
	return f
}

// upload runs the whole two-phase protocol for a text file of size bytes.
func (h *harness) upload(t *testing.T, ownerID, parentID, name string, size int64) *models.File {
	t.Helper()
	ctx := context.Background()
	ticket, err := h.uploads.Initiate(ctx, ownerID, models.UploadRequest{
		ParentFolderID: parentID,
		FileName:       name,
		SizeBytes:      size,
		ContentType:    "text/plain",
	})
	require.NoError(t, err)

	h.blobs.put(h.pending(t, ticket.UploadID).BlobKey, size, "text/plain")

	file, err := h.uploads.Complete(ctx, ownerID, ticket.UploadID)
	require.NoError(t, err)
	return file
}

func (h *harness) pending(t *testing.T, id string) *models.PendingUpload {
	t.Helper()
	p, err := h.store.Uploads(nil).GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) folder(t *testing.T, id string) *models.Folder {
	t.Helper()
	f, err := h.store.Folders(nil).GetByID(context.Background(), id)
	require.NoError(t, err)
	return f
}

func (h *harness) file(t *testing.T, id string) *models.File {
	t.Helper()
	f, err := h.store.Files(nil).GetByID(context.Background(), id)
	require.NoError(t, err)
	return f
}

// sizesOf returns the stored size of each folder id.
func (h *harness) sizesOf(t *testing.T, ids ...string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		out[id] = h.folder(t, id).SizeBytes
	}
	return out
}

func (h *harness) requireConsistent(t *testing.T, ownerID string) {
	t.Helper()
	report, err := h.checker.Check(context.Background(), ownerID)
	require.NoError(t, err)
	require.Truef(t, report.Consistent(), "size drift: %+v", report.Drift)
}

// abc builds root <- A <- B with file C (5 bytes) in B.
type abcTree struct {
	user *models.User
	a, b *models.Folder
	c    *models.File
}

func (h *harness) abc(t *testing.T) abcTree {
	t.Helper()
	u := h.register(t, "owner@example.com")
	a := h.mkdir(t, u.ID, u.RootFolderID, "A")
	b := h.mkdir(t, u.ID, a.ID, "B")
	c := h.upload(t, u.ID, b.ID, "c.txt", 5)
	return abcTree{user: u, a: a, b: b, c: c}
}
