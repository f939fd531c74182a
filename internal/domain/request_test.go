package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestInitialState(t *testing.T) {
	addr := testAddress(t, "pb", 9)
	req, err := NewRequest(KindMint, addr, decimal.NewFromInt(100), decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.Equal(t, KindMint, req.Kind)
	assert.Equal(t, StatusInserted, req.Status)
	assert.Equal(t, addr, req.Address)
	assert.Nil(t, req.TxHash)
	assert.Nil(t, req.SourceID)
}

func TestNewRequestRejectsBadAddress(t *testing.T) {
	_, err := NewRequest(KindMint, "garbage", decimal.NewFromInt(1), decimal.NewFromInt(1))
	assert.Error(t, err)
}

func TestNewRequestRejectsNegativeAmounts(t *testing.T) {
	addr := testAddress(t, "pb", 2)
	_, err := NewRequest(KindBurn, addr, decimal.NewFromInt(-1), decimal.NewFromInt(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")
}

func TestNewTransferQueued(t *testing.T) {
	from := testAddress(t, "pb", 4)
	to := testAddress(t, "pb", 8)
	req, err := NewTransfer(from, to, decimal.NewFromInt(25))
	require.NoError(t, err)

	assert.Equal(t, KindTransfer, req.Kind)
	assert.Equal(t, StatusQueued, req.Status)
	require.NotNil(t, req.Recipient)
	assert.Equal(t, to, *req.Recipient)
}

func TestNewTransferRejectsBadRecipient(t *testing.T) {
	from := testAddress(t, "pb", 4)
	_, err := NewTransfer(from, "garbage", decimal.NewFromInt(25))
	assert.Error(t, err)
}

func TestNewBurnForRedemption(t *testing.T) {
	addr := testAddress(t, "pb", 6)
	redemption, err := NewRequest(KindRedemption, addr, decimal.NewFromInt(500), decimal.NewFromInt(500))
	require.NoError(t, err)

	burn, err := NewBurnForRedemption(redemption)
	require.NoError(t, err)

	assert.Equal(t, KindBurn, burn.Kind)
	assert.Equal(t, StatusInserted, burn.Status)
	assert.Equal(t, redemption.Address, burn.Address)
	assert.True(t, burn.CoinAmount.Equal(redemption.CoinAmount))
	require.NotNil(t, burn.SourceID)
	assert.Equal(t, redemption.ID, *burn.SourceID)
}

func TestNewBurnForRedemptionRejectsOtherKinds(t *testing.T) {
	addr := testAddress(t, "pb", 6)
	mint, err := NewRequest(KindMint, addr, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.NoError(t, err)

	_, err = NewBurnForRedemption(mint)
	assert.Error(t, err)
}

func TestNewTxStatusRecordPending(t *testing.T) {
	addr := testAddress(t, "pb", 3)
	req, err := NewRequest(KindMint, addr, decimal.NewFromInt(1), decimal.NewFromInt(1))
	require.NoError(t, err)

	rec := NewTxStatusRecord(req.ID, "ABC123", TxTypeMint)
	assert.Equal(t, req.ID, rec.RequestID)
	assert.Equal(t, "ABC123", rec.TxHash)
	assert.Equal(t, TxStatusPending, rec.Status)
	assert.Nil(t, rec.RawLog)
}
