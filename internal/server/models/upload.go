package models

import "time"

const (
	UploadStatusInitiated = "initiated"
	UploadStatusCompleted = "completed"
)

// PendingUpload bridges initiate and complete. It records what the client
// declared so complete can compare it with the stored object.
type PendingUpload struct {
	ID             string
	OwnerID        string
	BlobKey        string
	FileName       string
	Extension      string
	ContentType    string
	SizeBytes      int64
	ParentFolderID string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired reports whether the upload can no longer be completed at now.
func (u *PendingUpload) Expired(now time.Time) bool {
	return !now.Before(u.ExpiresAt)
}

// UploadRequest is what a client declares when asking to upload a file.
type UploadRequest struct {
	ParentFolderID string `validate:"required"`
	FileName       string `validate:"required,max=255"`
	SizeBytes      int64  `validate:"gte=0"`
	ContentType    string `validate:"required,max=255"`
}

// WriteHandle is a time-boxed capability to put one object directly into
// the blob store.
type WriteHandle struct {
	URL       string
	Method    string
	Headers   map[string]string
	ExpiresAt time.Time
}

// UploadTicket is returned by initiate.
type UploadTicket struct {
	UploadID string
	Handle   WriteHandle
}

// PurgeStats reports one sweep over expired pending uploads.
type PurgeStats struct {
	Expired      int
	Deleted      int
	BlobsDeleted int
	BlobFailures int
}

// SizeDrift is a folder whose stored size differs from its file bytes.
type SizeDrift struct {
	FolderID    string
	StoredBytes int64
	ActualBytes int64
}

// CheckReport is the outcome of a consistency check of one user's tree.
type CheckReport struct {
	OwnerID string
	RootID  string
	Folders int
	Files   int
	Drift   []SizeDrift
}

func (r *CheckReport) Consistent() bool {
	return len(r.Drift) == 0
}
