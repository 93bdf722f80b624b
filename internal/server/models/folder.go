// Package models defines the storage engine records and the value objects
// returned by its services.
package models

import "time"

// Folder is a node of a user's tree. SizeBytes aggregates the bytes of every
// file in the subtree, trashed ones included, and is written only by the
// size propagator.
type Folder struct {
	ID             string
	Name           string
	OwnerID        string
	ParentFolderID *string
	SizeBytes      int64
	IsStarred      bool
	IsTrashed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Depth is the distance from the folder a tree query started at.
	// It is not persisted.
	Depth int
}

// IsRoot reports whether f is the root of its owner's tree.
func (f *Folder) IsRoot() bool {
	return f.ParentFolderID == nil
}

// FolderContent is the listing of a folder's live direct children.
type FolderContent struct {
	Folder  *Folder
	Folders []*Folder
	Files   []*File
}

// ItemList groups folders and files returned by trash and starred listings.
type ItemList struct {
	Folders []*Folder
	Files   []*File
}

// Subtree is the closure of a folder: the folder itself, every descendant
// folder and every file under any of them.
type Subtree struct {
	Root    *Folder
	Folders []*Folder
	Files   []*File
}

func (s *Subtree) FolderIDs() []string {
	ids := make([]string, 0, len(s.Folders))
	for _, f := range s.Folders {
		ids = append(ids, f.ID)
	}
	return ids
}

func (s *Subtree) FileIDs() []string {
	ids := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		ids = append(ids, f.ID)
	}
	return ids
}

func (s *Subtree) BlobKeys() []string {
	keys := make([]string, 0, len(s.Files))
	for _, f := range s.Files {
		keys = append(keys, f.BlobKey)
	}
	return keys
}

// FileBytes is the sum of file sizes in the closure.
func (s *Subtree) FileBytes() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.SizeBytes
	}
	return total
}
