package domain

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// addressPrefixes are the bech32 human-readable parts accepted for chain
// addresses: mainnet and testnet.
var addressPrefixes = []string{"pb", "tp"}

// ValidateAddress checks that an address is well-formed bech32 with an
// accepted prefix.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is empty")
	}
	hrp, _, err := bech32.Decode(address)
	if err != nil {
		return fmt.Errorf("invalid bech32 address %q: %w", address, err)
	}
	for _, prefix := range addressPrefixes {
		if hrp == prefix {
			return nil
		}
	}
	return fmt.Errorf("address %q has unexpected prefix %q (want one of %s)",
		address, hrp, strings.Join(addressPrefixes, ", "))
}
