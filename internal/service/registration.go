package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

// RegistrationService answers "is this address a registered customer"
// and creates the tag/detag requests that change the answer. Lookups
// go through the Redis cache first; misses fall through to Postgres and
// re-prime the cache.
type RegistrationService struct {
	db       *storage.PostgresDB
	requests *storage.RequestRepository
	cache    *storage.RedisCache
	log      *logging.Logger
}

// NewRegistrationService creates a registration service. cache may be
// nil, in which case every lookup hits Postgres.
func NewRegistrationService(db *storage.PostgresDB, requests *storage.RequestRepository, cache *storage.RedisCache, log *logging.Logger) *RegistrationService {
	return &RegistrationService{
		db:       db,
		requests: requests,
		cache:    cache,
		log:      log.Component("registrations"),
	}
}

// IsRegistered reports whether an address currently carries a completed
// registration. Cache errors degrade to a Postgres lookup rather than
// failing the caller.
func (s *RegistrationService) IsRegistered(ctx context.Context, address string) (bool, error) {
	if s.cache != nil {
		registered, found, err := s.cache.GetRegistered(ctx, address)
		if err != nil {
			s.log.WithError(err).WithField("address", address).Warn("registration cache read failed")
		} else if found {
			return registered, nil
		}
	}

	registered, err := s.requests.IsRegistered(ctx, s.db.Pool(), address)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		if err := s.cache.SetRegistered(ctx, address, registered); err != nil {
			s.log.WithError(err).WithField("address", address).Warn("registration cache write failed")
		}
	}
	return registered, nil
}

// Invalidate drops the cached registration state for an address. Called
// when a tag or detag completes on chain.
func (s *RegistrationService) Invalidate(ctx context.Context, address string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRegistration(ctx, address); err != nil {
		s.log.WithError(err).WithField("address", address).Warn("registration cache invalidation failed")
	}
}

// RegisterAddress creates a tag request for an address. The tag queue
// pair drives it to completion.
func (s *RegistrationService) RegisterAddress(ctx context.Context, address string) (*domain.TransactionRequest, error) {
	req, err := domain.NewRequest(domain.KindTag, address, decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	if err := s.requests.Insert(ctx, s.db.Pool(), req); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{"requestId": req.ID, "address": address}).Info("tag request created")
	return req, nil
}

// DeregisterAddress creates a detag request for an address.
func (s *RegistrationService) DeregisterAddress(ctx context.Context, address string) (*domain.TransactionRequest, error) {
	req, err := domain.NewRequest(domain.KindDetag, address, decimal.Zero, decimal.Zero)
	if err != nil {
		return nil, err
	}
	if err := s.requests.Insert(ctx, s.db.Pool(), req); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{"requestId": req.ID, "address": address}).Info("detag request created")
	return req, nil
}
