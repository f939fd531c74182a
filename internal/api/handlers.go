package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/service"
)

type amountRequest struct {
	Address    string          `json:"address"`
	CoinAmount decimal.Decimal `json:"coinAmount"`
	FiatAmount decimal.Decimal `json:"fiatAmount"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.status.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	height, err := s.status.BookmarkHeight(r.Context())
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		respondError(w, http.StatusInternalServerError, "failed to read stream bookmark")
		return
	}
	count, err := s.status.MovementCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count movements")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"streamHeight": height,
		"movements":    count,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.registrations.RegisterAddress(r.Context(), req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	created, err := s.registrations.DeregisterAddress(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	registered, err := s.registrations.IsRegistered(r.Context(), address)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "registration lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":    address,
		"registered": registered,
	})
}

func (s *Server) handleCreateMint(w http.ResponseWriter, r *http.Request) {
	s.handleCreateAmount(w, r, s.requests.CreateMint)
}

func (s *Server) handleCreateBurn(w http.ResponseWriter, r *http.Request) {
	s.handleCreateAmount(w, r, s.requests.CreateBurn)
}

func (s *Server) handleCreateRedemption(w http.ResponseWriter, r *http.Request) {
	s.handleCreateAmount(w, r, s.requests.CreateRedemption)
}

func (s *Server) handleCreateAmount(w http.ResponseWriter, r *http.Request, create func(ctx context.Context, address string, coin, fiat decimal.Decimal) (*domain.TransactionRequest, error)) {
	var req amountRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := create(r.Context(), req.Address, req.CoinAmount, req.FiatAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleQueueSettlement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positions []service.Position `json:"positions"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.settlements.QueueSettlement(r.Context(), req.Positions)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request id")
		return
	}
	req, err := s.requests.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "request not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load request")
		return
	}
	respondJSON(w, http.StatusOK, req)
}
