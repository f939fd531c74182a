package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

// RequestService creates mint, burn, and redemption requests on behalf
// of the API layer. Rows are inserted in their initial status; the
// per-kind queue pairs own them from there.
type RequestService struct {
	db            *storage.PostgresDB
	requests      *storage.RequestRepository
	registrations *RegistrationService
	log           *logging.Logger
}

// NewRequestService creates a request service.
func NewRequestService(db *storage.PostgresDB, requests *storage.RequestRepository, registrations *RegistrationService, log *logging.Logger) *RequestService {
	return &RequestService{
		db:            db,
		requests:      requests,
		registrations: registrations,
		log:           log.Component("requests"),
	}
}

// CreateMint creates a mint crediting coin to a registered customer
// address against a received fiat amount.
func (s *RequestService) CreateMint(ctx context.Context, address string, coinAmount, fiatAmount decimal.Decimal) (*domain.TransactionRequest, error) {
	if err := s.requireRegistered(ctx, address); err != nil {
		return nil, err
	}
	return s.create(ctx, domain.KindMint, address, coinAmount, fiatAmount)
}

// CreateBurn creates a burn removing coin from the member's reserve.
func (s *RequestService) CreateBurn(ctx context.Context, address string, coinAmount, fiatAmount decimal.Decimal) (*domain.TransactionRequest, error) {
	return s.create(ctx, domain.KindBurn, address, coinAmount, fiatAmount)
}

// CreateRedemption creates a redemption converting a customer's coin
// back to fiat. Completion chains a burn automatically.
func (s *RequestService) CreateRedemption(ctx context.Context, address string, coinAmount, fiatAmount decimal.Decimal) (*domain.TransactionRequest, error) {
	if err := s.requireRegistered(ctx, address); err != nil {
		return nil, err
	}
	return s.create(ctx, domain.KindRedemption, address, coinAmount, fiatAmount)
}

// Get returns a request by id, so API callers can observe persisted
// status instead of a live outcome.
func (s *RequestService) Get(ctx context.Context, id uuid.UUID) (*domain.TransactionRequest, error) {
	return s.requests.Get(ctx, s.db.Pool(), id)
}

func (s *RequestService) create(ctx context.Context, kind domain.RequestKind, address string, coinAmount, fiatAmount decimal.Decimal) (*domain.TransactionRequest, error) {
	req, err := domain.NewRequest(kind, address, coinAmount, fiatAmount)
	if err != nil {
		return nil, err
	}
	if err := s.requests.Insert(ctx, s.db.Pool(), req); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{"requestId": req.ID, "kind": kind, "address": address}).Info("request created")
	return req, nil
}

func (s *RequestService) requireRegistered(ctx context.Context, address string) error {
	registered, err := s.registrations.IsRegistered(ctx, address)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("address %s is not registered", address)
	}
	return nil
}
