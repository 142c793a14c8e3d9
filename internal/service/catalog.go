package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/khushigoyal02/EMS-back/internal/clock"
	"github.com/khushigoyal02/EMS-back/internal/model"
	"github.com/khushigoyal02/EMS-back/internal/repository"
)

// CatalogService manages the services vendors offer.
type CatalogService struct {
	accounts AccountStore
	services ServiceStore
	clk      clock.Clock
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(accounts AccountStore, services ServiceStore, clk clock.Clock) *CatalogService {
	return &CatalogService{accounts: accounts, services: services, clk: clk}
}

func validateService(req *model.ServiceRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return invalid("service name is required")
	}
	if req.Price < 0 {
		return invalid("price cannot be negative")
	}
	return nil
}

// Add creates a service owned by the calling vendor.
func (s *CatalogService) Add(ctx context.Context, uid string, req model.ServiceRequest) (model.Service, error) {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return model.Service{}, err
	}
	if err := validateService(&req); err != nil {
		return model.Service{}, err
	}
	svc := model.Service{
		ID:          uuid.New().String(),
		VendorID:    vendor.ID,
		VendorName:  vendor.Name,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Price:       req.Price,
		Image:       req.Image,
		CreatedAt:   s.clk.Now(),
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return model.Service{}, fmt.Errorf("add service: %w", err)
	}
	return svc, nil
}

// ListAll returns every service with its vendor name.
func (s *CatalogService) ListAll(ctx context.Context) ([]model.Service, error) {
	return s.services.ListAll(ctx)
}

// ListMine returns the calling vendor's services.
func (s *CatalogService) ListMine(ctx context.Context, uid string) ([]model.Service, error) {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return nil, err
	}
	return s.services.ListByVendor(ctx, vendor.ID)
}

// Update edits one of the calling vendor's services.
func (s *CatalogService) Update(ctx context.Context, uid, id string, req model.ServiceRequest) error {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return err
	}
	if !isUUID(id) {
		return repository.ErrNotFound
	}
	if err := validateService(&req); err != nil {
		return err
	}
	err = s.services.Update(ctx, model.Service{
		ID:          id,
		VendorID:    vendor.ID,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Price:       req.Price,
		Image:       req.Image,
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("update service: %w", err)
	}
	return err
}

// Delete removes one of the calling vendor's services.
func (s *CatalogService) Delete(ctx context.Context, uid, id string) error {
	vendor, err := accountFor(ctx, s.accounts, uid, model.RoleVendor)
	if err != nil {
		return err
	}
	if !isUUID(id) {
		return repository.ErrNotFound
	}
	err = s.services.Delete(ctx, id, vendor.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrInUse) {
		return fmt.Errorf("delete service: %w", err)
	}
	return err
}
