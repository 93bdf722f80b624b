package models

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var errEmptyPatch = errors.New("patch has no fields")

// FolderPatch is a partial update of a folder. Nil fields are left alone.
// Trashed is routed to the lifecycle manager so it covers the whole subtree.
type FolderPatch struct {
	Name    *string `validate:"omitempty,min=1,max=30"`
	Starred *bool
	Trashed *bool
}

func (p FolderPatch) Validate() error {
	if p.Name == nil && p.Starred == nil && p.Trashed == nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, errEmptyPatch)
	}
	return validateStruct(p)
}

// FilePatch is a partial update of a file.
type FilePatch struct {
	Name    *string `validate:"omitempty,min=1,max=50"`
	Starred *bool
	Trashed *bool
}

func (p FilePatch) Validate() error {
	if p.Name == nil && p.Starred == nil && p.Trashed == nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, errEmptyPatch)
	}
	return validateStruct(p)
}

// Validate checks the declared upload and the name part of FileName.
func (r UploadRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	name, _ := SplitFileName(r.FileName)
	if err := validate.Var(name, "min=1,max=50"); err != nil {
		return fmt.Errorf("%w: file name: %w", common.ErrValidation, err)
	}
	return nil
}

// ValidateFolderName checks a name for a new folder.
func ValidateFolderName(name string) error {
	if err := validate.Var(name, "required,min=1,max=30"); err != nil {
		return fmt.Errorf("%w: folder name: %w", common.ErrValidation, err)
	}
	return nil
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return nil
}
