// Package clinic holds the patient read/write surface served under
// /v1/patients.
package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinika.org/internal/ids"
)

var (
	ErrNotFound     = errors.New("clinic: not found")
	ErrInvalidInput = errors.New("clinic: invalid input")
)

// Patient is the record stored per tenant.
type Patient struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FullName  string    `json:"full_name"`
	BornOn    string    `json:"born_on,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PatientStore persists patients.
type PatientStore interface {
	Create(ctx context.Context, p *Patient) error
	Find(ctx context.Context, tenantID, id string) (*Patient, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Patient, error)
}

// Service validates input before handing off to the store.
type Service struct {
	store PatientStore
}

func NewService(store PatientStore) (*Service, error) {
	if store == nil {
		return nil, errors.New("clinic: patient store is required")
	}
	return &Service{store: store}, nil
}

// Register creates a patient record within the caller's tenant.
func (s *Service) Register(ctx context.Context, tenantID, fullName, bornOn string) (*Patient, error) {
	tenantID = strings.TrimSpace(tenantID)
	fullName = strings.TrimSpace(fullName)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	bornOn = strings.TrimSpace(bornOn)
	if bornOn != "" {
		if _, err := time.Parse("2006-01-02", bornOn); err != nil {
			return nil, fmt.Errorf("%w: born_on must be YYYY-MM-DD", ErrInvalidInput)
		}
	}
	p := &Patient{
		ID:       ids.New(),
		TenantID: tenantID,
		FullName: fullName,
		BornOn:   bornOn,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get fetches one patient scoped to the caller's tenant.
func (s *Service) Get(ctx context.Context, tenantID, id string) (*Patient, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: patient id is required", ErrInvalidInput)
	}
	return s.store.Find(ctx, tenantID, id)
}

// List returns up to limit patients for the tenant, newest first.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]*Patient, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListByTenant(ctx, tenantID, limit)
}
