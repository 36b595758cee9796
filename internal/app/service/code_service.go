package service

import (
	"context"
	"fmt"

	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
)

// CodeService defines behaviour-level operations on codes for the management
// API. It is a thin layer over the repositories plus reference-filter upkeep.
type CodeService interface {
	CreateCode(ctx context.Context, input CreateCodeInput) (*model.Code, error)
	GetCode(ctx context.Context, ref string) (*repository.CodeWithStats, error)
	ListCodes(ctx context.Context, limit, offset int) ([]repository.CodeWithStats, error)
	UpdateCode(ctx context.Context, ref string, input UpdateCodeInput) (*model.Code, error)
	ToggleCode(ctx context.Context, ref string) (*model.Code, error)
	DeleteCode(ctx context.Context, ref string) error
	ResetScans(ctx context.Context, ref string) (int64, error)
	ListScans(ctx context.Context, ref string, limit, offset int) ([]model.Scan, error)
}

type codeService struct {
	codes  repository.CodeRepository
	scans  repository.ScanRepository
	filter *ReferenceFilter // optional
}

// NewCodeService returns a service implementation backed by the given repositories.
func NewCodeService(codes repository.CodeRepository, scans repository.ScanRepository, filter *ReferenceFilter) CodeService {
	return &codeService{codes: codes, scans: scans, filter: filter}
}

// CreateCodeInput captures data required to create a code manually.
type CreateCodeInput struct {
	Reference      string
	Name           string
	DestinationURL string
	Active         bool
}

// UpdateCodeInput captures fields that can be changed on an existing code.
// The reference itself is immutable.
type UpdateCodeInput struct {
	Name           *string
	DestinationURL *string
	Active         *bool
}

func (s *codeService) CreateCode(ctx context.Context, input CreateCodeInput) (*model.Code, error) {
	code := &model.Code{
		Reference:      input.Reference,
		Name:           input.Name,
		DestinationURL: input.DestinationURL,
		Active:         input.Active,
	}

	if err := s.codes.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("create code: %w", err)
	}
	if s.filter != nil {
		s.filter.Add(code.Reference)
	}
	return code, nil
}

func (s *codeService) GetCode(ctx context.Context, ref string) (*repository.CodeWithStats, error) {
	code, err := s.codes.GetByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get code: %w", err)
	}

	scanCount, err := s.scans.CountByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("count scans: %w", err)
	}
	ipCount, err := s.scans.CountDistinctIPsByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("count distinct ips: %w", err)
	}

	return &repository.CodeWithStats{
		Reference:      code.Reference,
		Name:           code.Name,
		DestinationURL: code.DestinationURL,
		Active:         code.Active,
		ScanCount:      scanCount,
		UniqueIPCount:  ipCount,
	}, nil
}

func (s *codeService) ListCodes(ctx context.Context, limit, offset int) ([]repository.CodeWithStats, error) {
	codes, err := s.codes.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return codes, nil
}

func (s *codeService) UpdateCode(ctx context.Context, ref string, input UpdateCodeInput) (*model.Code, error) {
	code, err := s.codes.GetByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}

	if input.Name != nil {
		code.Name = *input.Name
	}
	if input.DestinationURL != nil {
		code.DestinationURL = *input.DestinationURL
	}
	if input.Active != nil {
		code.Active = *input.Active
	}

	if err := s.codes.Update(ctx, code); err != nil {
		return nil, fmt.Errorf("update code: %w", err)
	}
	return code, nil
}

func (s *codeService) ToggleCode(ctx context.Context, ref string) (*model.Code, error) {
	code, err := s.codes.GetByReference(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}

	if err := s.codes.SetActive(ctx, ref, !code.Active); err != nil {
		return nil, fmt.Errorf("toggle code: %w", err)
	}
	code.Active = !code.Active
	return code, nil
}

// DeleteCode removes the code and cascades deletion of its scans. The
// reference filter deliberately keeps the stale entry; it only costs a
// database miss if the reference is ever scanned again.
func (s *codeService) DeleteCode(ctx context.Context, ref string) error {
	if err := s.codes.Delete(ctx, ref); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

// ResetScans clears the scan history of a code but keeps the code row intact.
func (s *codeService) ResetScans(ctx context.Context, ref string) (int64, error) {
	if _, err := s.codes.GetByReference(ctx, ref); err != nil {
		return 0, fmt.Errorf("load code: %w", err)
	}

	deleted, err := s.scans.DeleteByReference(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("reset scans: %w", err)
	}
	return deleted, nil
}

func (s *codeService) ListScans(ctx context.Context, ref string, limit, offset int) ([]model.Scan, error) {
	if _, err := s.codes.GetByReference(ctx, ref); err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}

	scans, err := s.scans.ListByReference(ctx, ref, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return scans, nil
}
