package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is a business-owned offering. Duration and price are copied
// onto appointments at booking time. Inactive services are unbookable.
type Service struct {
	ID              uuid.UUID `json:"id"`
	BusinessID      uuid.UUID `json:"business_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Active          bool      `json:"active"`
	// InstantBook decides the initial appointment status: confirmed
	// when true, pending (awaiting business confirmation) otherwise.
	InstantBook bool      `json:"instant_book"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate enforces catalog invariants.
func (s *Service) Validate() error {
	if s.BusinessID == uuid.Nil {
		return validationError("service requires a business id")
	}
	if s.Name == "" {
		return validationError("service name is required")
	}
	if s.DurationMinutes <= 0 {
		return validationError("service duration must be positive, got %d", s.DurationMinutes)
	}
	if s.PriceCents < 0 {
		return validationError("service price must not be negative")
	}
	return nil
}

// ServiceStore persists the service catalog.
type ServiceStore interface {
	GetService(ctx context.Context, businessID, serviceID uuid.UUID) (*Service, error)
	ListServices(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]Service, error)
	CreateService(ctx context.Context, svc *Service) error
	UpdateService(ctx context.Context, svc *Service) error
	// DeactivateService marks a service unbookable; it is never deleted
	// because existing appointments reference it.
	DeactivateService(ctx context.Context, businessID, serviceID uuid.UUID) error
}

// MemoryServiceStore is an in-memory ServiceStore for tests and demo mode.
type MemoryServiceStore struct {
	mu       sync.RWMutex
	services map[uuid.UUID]Service
}

// NewMemoryServiceStore creates an empty in-memory catalog.
func NewMemoryServiceStore() *MemoryServiceStore {
	return &MemoryServiceStore{services: make(map[uuid.UUID]Service)}
}

func (s *MemoryServiceStore) GetService(ctx context.Context, businessID, serviceID uuid.UUID) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.BusinessID != businessID {
		return nil, notFoundError("service %s", serviceID)
	}
	return &svc, nil
}

func (s *MemoryServiceStore) ListServices(ctx context.Context, businessID uuid.UUID, activeOnly bool) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Service
	for _, svc := range s.services {
		if svc.BusinessID != businessID {
			continue
		}
		if activeOnly && !svc.Active {
			continue
		}
		out = append(out, svc)
	}
	return out, nil
}

func (s *MemoryServiceStore) CreateService(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	now := time.Now().UTC()
	svc.CreatedAt = now
	svc.UpdatedAt = now
	s.mu.Lock()
	s.services[svc.ID] = *svc
	s.mu.Unlock()
	return nil
}

func (s *MemoryServiceStore) UpdateService(ctx context.Context, svc *Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.services[svc.ID]
	if !ok || existing.BusinessID != svc.BusinessID {
		return notFoundError("service %s", svc.ID)
	}
	svc.CreatedAt = existing.CreatedAt
	svc.UpdatedAt = time.Now().UTC()
	s.services[svc.ID] = *svc
	return nil
}

func (s *MemoryServiceStore) DeactivateService(ctx context.Context, businessID, serviceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.BusinessID != businessID {
		return notFoundError("service %s", serviceID)
	}
	svc.Active = false
	svc.UpdatedAt = time.Now().UTC()
	s.services[serviceID] = svc
	return nil
}
