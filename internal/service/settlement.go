package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/domain"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/logging"
	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/storage"
)

// Position is one address's net obligation in a settlement round. A
// positive amount owes coin; a negative amount is owed coin.
type Position struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// Instruction is one marker transfer produced by netting.
type Instruction struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Net reduces a balanced set of positions to transfer instructions by
// repeatedly pairing the largest remaining sender with the largest
// remaining receiver. Ties break on ascending address so the output is
// deterministic for a given input set.
//
// TODO: greedy pairing is not guaranteed to minimize the instruction
// count when obligations split unevenly; revisit if per-transfer fees
// become material.
func Net(positions []Position) ([]Instruction, error) {
	var senders, receivers []Position
	total := decimal.Zero
	for _, p := range positions {
		total = total.Add(p.Amount)
		switch {
		case p.Amount.IsPositive():
			senders = append(senders, p)
		case p.Amount.IsNegative():
			receivers = append(receivers, Position{Address: p.Address, Amount: p.Amount.Neg()})
		}
	}
	if !total.IsZero() {
		return nil, fmt.Errorf("settlement positions do not balance: net %s", total)
	}

	sortPositions(senders)
	sortPositions(receivers)

	var out []Instruction
	i, j := 0, 0
	for i < len(senders) && j < len(receivers) {
		s, r := &senders[i], &receivers[j]
		amount := decimal.Min(s.Amount, r.Amount)
		out = append(out, Instruction{From: s.Address, To: r.Address, Amount: amount})
		s.Amount = s.Amount.Sub(amount)
		r.Amount = r.Amount.Sub(amount)
		if s.Amount.IsZero() {
			i++
		}
		if r.Amount.IsZero() {
			j++
		}
	}
	return out, nil
}

// sortPositions orders by descending amount, then ascending address.
func sortPositions(ps []Position) {
	sort.Slice(ps, func(a, b int) bool {
		if cmp := ps[a].Amount.Cmp(ps[b].Amount); cmp != 0 {
			return cmp > 0
		}
		return ps[a].Address < ps[b].Address
	})
}

// SettlementService turns netted positions into queued marker transfer
// rows for the transfer batch queue to broadcast.
type SettlementService struct {
	db       *storage.PostgresDB
	requests *storage.RequestRepository
	log      *logging.Logger
}

// NewSettlementService creates a settlement service.
func NewSettlementService(db *storage.PostgresDB, requests *storage.RequestRepository, log *logging.Logger) *SettlementService {
	return &SettlementService{
		db:       db,
		requests: requests,
		log:      log.Component("settlement"),
	}
}

// QueueSettlement nets the positions and inserts one QUEUED transfer
// request per instruction.
func (s *SettlementService) QueueSettlement(ctx context.Context, positions []Position) ([]*domain.TransactionRequest, error) {
	instructions, err := Net(positions)
	if err != nil {
		return nil, err
	}

	var created []*domain.TransactionRequest
	for _, ins := range instructions {
		req, err := domain.NewTransfer(ins.From, ins.To, ins.Amount)
		if err != nil {
			return nil, err
		}
		if err := s.requests.Insert(ctx, s.db.Pool(), req); err != nil {
			return nil, err
		}
		created = append(created, req)
	}
	s.log.WithFields(map[string]interface{}{"positions": len(positions), "transfers": len(created)}).Info("settlement queued")
	return created, nil
}
