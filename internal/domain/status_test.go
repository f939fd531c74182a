package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusQueued, InitialStatus(KindTransfer))
	for _, kind := range []RequestKind{KindMint, KindBurn, KindRedemption, KindTag, KindDetag} {
		assert.Equal(t, StatusInserted, InitialStatus(kind))
	}
}

func TestForwardTransitions(t *testing.T) {
	require.NoError(t, Transition(KindMint, StatusInserted, StatusPendingMint))
	require.NoError(t, Transition(KindMint, StatusPendingMint, StatusTxnComplete))
	require.NoError(t, Transition(KindMint, StatusTxnComplete, StatusActionComplete))

	require.NoError(t, Transition(KindTransfer, StatusQueued, StatusPendingTransfer))
	require.NoError(t, Transition(KindTransfer, StatusPendingTransfer, StatusTxnComplete))

	// Kinds without a notification step stop at TXN_COMPLETE.
	assert.Error(t, Transition(KindRedemption, StatusTxnComplete, StatusActionComplete))
	assert.Error(t, Transition(KindTransfer, StatusTxnComplete, StatusActionComplete))
}

func TestRetryReset(t *testing.T) {
	require.NoError(t, Transition(KindMint, StatusPendingMint, StatusInserted))
	require.NoError(t, Transition(KindTransfer, StatusPendingTransfer, StatusQueued))

	// The reset only applies from the pending status.
	assert.Error(t, Transition(KindMint, StatusTxnComplete, StatusInserted))
	assert.Error(t, Transition(KindMint, StatusInserted, StatusInserted))
}

func TestFailureReachableFromNonTerminal(t *testing.T) {
	for _, kind := range Kinds {
		require.NoError(t, Transition(kind, InitialStatus(kind), StatusError), "kind %s", kind)
		require.NoError(t, Transition(kind, PendingStatus(kind), StatusValidationFailed), "kind %s", kind)
	}
	// Mint has a notification step, so TXN_COMPLETE is not terminal yet.
	require.NoError(t, Transition(KindMint, StatusTxnComplete, StatusException))
	// Redemption does not.
	assert.Error(t, Transition(KindRedemption, StatusTxnComplete, StatusError))
}

func TestTerminalStatusesAreImmutable(t *testing.T) {
	all := []Status{
		StatusInserted, StatusQueued, StatusPendingMint, StatusPendingBurn,
		StatusPendingRedeem, StatusPendingTag, StatusPendingDetag, StatusPendingTransfer,
		StatusTxnComplete, StatusActionComplete, StatusError, StatusValidationFailed, StatusException,
	}
	for _, kind := range Kinds {
		for _, from := range all {
			if !from.IsTerminal(kind) {
				continue
			}
			for _, to := range all {
				assert.False(t, CanTransition(kind, from, to), "%s: %s -> %s", kind, from, to)
			}
		}
	}
}

// Walking the graph from any status, no sequence of legal moves can
// revisit the initial status except through the single retry reset.
func TestNoBackwardMovesProperty(t *testing.T) {
	all := []Status{
		StatusInserted, StatusQueued, StatusPendingMint, StatusPendingBurn,
		StatusPendingRedeem, StatusPendingTag, StatusPendingDetag, StatusPendingTransfer,
		StatusTxnComplete, StatusActionComplete, StatusError, StatusValidationFailed, StatusException,
	}

	properties := gopter.NewProperties(nil)
	properties.Property("legal moves are forward, failure, or the retry reset", prop.ForAll(
		func(kindIdx, fromIdx, toIdx int) bool {
			kind := Kinds[kindIdx%len(Kinds)]
			from := all[fromIdx%len(all)]
			to := all[toIdx%len(all)]
			if !CanTransition(kind, from, to) {
				return true
			}
			if to.IsFailure() {
				return true
			}
			if from == PendingStatus(kind) && to == InitialStatus(kind) {
				return true
			}
			return forward[kind][from] == to
		},
		gen.IntRange(0, 5),
		gen.IntRange(0, 12),
		gen.IntRange(0, 12),
	))
	properties.TestingRun(t)
}
