package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FigureTechnologies/digital-currency-consortium-sub000/internal/chain"
)

func transferEvent(attrs map[string]string) chain.Event {
	ev := chain.Event{
		BlockHeight: 42,
		TxHash:      "ABC123",
		EventIndex:  3,
		Type:        EventMarkerTransfer,
	}
	for k, v := range attrs {
		ev.Attributes = append(ev.Attributes, chain.Attribute{Key: k, Value: v})
	}
	return ev
}

func TestMovementFromEvent(t *testing.T) {
	m, err := movementFromEvent(transferEvent(map[string]string{
		"amount":       "1250.50",
		"denom":        "usdf.c",
		"from_address": "pb1from",
		"to_address":   "pb1to",
	}))
	require.NoError(t, err)
	assert.Equal(t, "ABC123", m.TxHash)
	assert.Equal(t, 3, m.EventIndex)
	assert.Equal(t, int64(42), m.BlockHeight)
	assert.Equal(t, "usdf.c", m.Denom)
	assert.True(t, m.Amount.Equal(dec("1250.50")))
	assert.Equal(t, "pb1from", m.FromAddress)
	assert.Equal(t, "pb1to", m.ToAddress)
}

func TestMovementFromEventMissingAttributes(t *testing.T) {
	full := map[string]string{
		"amount":       "10",
		"denom":        "usdf.c",
		"from_address": "pb1from",
		"to_address":   "pb1to",
	}
	for missing := range full {
		attrs := map[string]string{}
		for k, v := range full {
			if k != missing {
				attrs[k] = v
			}
		}
		_, err := movementFromEvent(transferEvent(attrs))
		require.Error(t, err, "expected error when %s is absent", missing)
		assert.Contains(t, err.Error(), missing)
	}
}

func TestMovementFromEventBadAmount(t *testing.T) {
	_, err := movementFromEvent(transferEvent(map[string]string{
		"amount":       "not-a-number",
		"denom":        "usdf.c",
		"from_address": "pb1from",
		"to_address":   "pb1to",
	}))
	assert.Error(t, err)
}

func TestEventTypes(t *testing.T) {
	types := EventTypes()
	assert.Contains(t, types, EventMarkerTransfer)
	assert.Contains(t, types, EventMarkerMint)
	assert.Contains(t, types, EventMarkerBurn)
}
