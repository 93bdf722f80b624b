package models

import (
	"strings"
	"time"
)

// File is the metadata of a committed blob. SizeBytes never changes after
// creation.
type File struct {
	ID             string
	Name           string
	Extension      string
	ContentType    string
	SizeBytes      int64
	OwnerID        string
	ParentFolderID string
	BlobKey        string
	IsStarred      bool
	IsTrashed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RecentGroup holds the files last touched on one UTC day.
type RecentGroup struct {
	Day   time.Time
	Files []*File
}

// SplitFileName splits "report.final.pdf" into ("report.final", "pdf").
// Dot files and names without a dot have no extension.
func SplitFileName(fileName string) (name, extension string) {
	i := strings.LastIndex(fileName, ".")
	if i <= 0 || i == len(fileName)-1 {
		return fileName, ""
	}
	return fileName[:i], fileName[i+1:]
}
