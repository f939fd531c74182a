// Package domain defines the request kinds, status graphs, and persisted
// entities the middleware keeps synchronized with on-chain state.
package domain

import "fmt"

// RequestKind identifies the operation a transaction request performs on chain.
type RequestKind string

const (
	KindMint       RequestKind = "MINT"
	KindBurn       RequestKind = "BURN"
	KindRedemption RequestKind = "REDEMPTION"
	KindTag        RequestKind = "TAG"
	KindDetag      RequestKind = "DETAG"
	KindTransfer   RequestKind = "TRANSFER"
)

// Kinds lists every request kind in a stable order.
var Kinds = []RequestKind{KindMint, KindBurn, KindRedemption, KindTag, KindDetag, KindTransfer}

// ParseKind parses a string into a RequestKind.
func ParseKind(s string) (RequestKind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown request kind: %q", s)
}

// TxType tags a broadcast attempt with the operation it performed.
type TxType string

const (
	TxTypeMint     TxType = "MINT"
	TxTypeBurn     TxType = "BURN"
	TxTypeRedeem   TxType = "REDEEM"
	TxTypeTag      TxType = "TAG"
	TxTypeDetag    TxType = "DETAG"
	TxTypeTransfer TxType = "TRANSFER"
)

// TxTypeFor returns the tx status type recorded for a request kind's broadcast.
func TxTypeFor(kind RequestKind) TxType {
	switch kind {
	case KindMint:
		return TxTypeMint
	case KindBurn:
		return TxTypeBurn
	case KindRedemption:
		return TxTypeRedeem
	case KindTag:
		return TxTypeTag
	case KindDetag:
		return TxTypeDetag
	case KindTransfer:
		return TxTypeTransfer
	}
	return TxType(kind)
}
