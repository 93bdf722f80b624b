package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
)

const rootFolderName = "root"

// UserService registers accounts and reports their storage usage.
type UserService struct {
	db           dbx.Transactor
	repomanager  repomanager.RepositoryManager
	quota        *QuotaAccountant
	defaultQuota int64
}

func NewUserService(db dbx.Transactor, m repomanager.RepositoryManager, quota *QuotaAccountant, cfg *config.Config) *UserService {
	return &UserService{
		db:           db,
		repomanager:  m,
		quota:        quota,
		defaultQuota: cfg.DefaultQuotaBytes,
	}
}

// Register creates the user and its root folder in one transaction.
// An email that is already registered yields common.ErrAlreadyExists.
func (s *UserService) Register(ctx context.Context, reg models.Registration) (_ *models.User, err error) {
	defer func() { err = dbx.Classify(err) }()

	if err := reg.Validate(); err != nil {
		return nil, err
	}

	_, err = s.repomanager.Users(s.db.Conn()).GetByEmail(ctx, reg.Email)
	if err == nil {
		return nil, fmt.Errorf("email %s: %w", reg.Email, common.ErrAlreadyExists)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	user := &models.User{
		ID:                common.NewID(),
		Name:              reg.Name,
		Email:             reg.Email,
		StorageQuotaBytes: s.defaultQuota,
		RootFolderID:      common.NewID(),
	}
	root := &models.Folder{
		ID:      user.RootFolderID,
		Name:    rootFolderName,
		OwnerID: user.ID,
	}

	if err := s.db.WithTx(ctx, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).Create(ctx, user); err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		if err := s.repomanager.Folders(tx).Create(ctx, root); err != nil {
			return fmt.Errorf("error creating root folder: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return user, nil
}

// Usage reports quota consumption of ownerID.
func (s *UserService) Usage(ctx context.Context, ownerID string) (*models.StorageUsage, error) {
	return s.quota.Usage(ctx, ownerID)
}

// FindByEmail returns the user registered with email.
func (s *UserService) FindByEmail(ctx context.Context, email string) (_ *models.User, err error) {
	defer func() { err = dbx.Classify(err) }()

	u, err := s.repomanager.Users(s.db.Conn()).GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error searching user: %w", err)
	}
	return u, nil
}
