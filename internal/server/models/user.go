package models

import "time"

// User owns exactly one folder tree. StorageQuotaBytes is the allotment;
// consumption is the root folder's SizeBytes.
type User struct {
	ID                string
	Name              string
	Email             string
	StorageQuotaBytes int64
	RootFolderID      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// StorageUsage summarizes quota consumption for one user.
type StorageUsage struct {
	TotalBytes     int64
	UsedBytes      int64
	AvailableBytes int64
	UsagePercent   float64
}

// Registration is the input of a new account.
type Registration struct {
	Name  string `validate:"required,max=100"`
	Email string `validate:"required,email,max=255"`
}

func (r Registration) Validate() error {
	return validateStruct(r)
}
