package sequencer

import (
	"fmt"
	"strings"
)

// Key is a normalized account identifier scoped to a network, in the form
// "<network>:<address>". Two textual spellings of the same account always
// normalize to the same Key.
type Key string

// hexAddressWidth is the canonical hex address width in nibbles (32 bytes).
const hexAddressWidth = 64

// InvalidAccountError reports an account address or network that cannot be
// normalized.
type InvalidAccountError struct {
	Address string
	Network string
	Reason  string
}

func (e *InvalidAccountError) Error() string {
	return fmt.Sprintf("invalid account %q on network %q: %s", e.Address, e.Network, e.Reason)
}

// Normalize canonicalizes an address/network pair into a Key.
//
// 0x-prefixed hex addresses are lower-cased and zero-padded to 32 bytes so
// short forms (e.g. "0x1") and full forms map to the same key. Non-hex
// address formats are taken verbatim after trimming, since their encodings
// (e.g. SS58) are case-significant.
func Normalize(address, network string) (Key, error) {
	network = strings.ToLower(strings.TrimSpace(network))
	address = strings.TrimSpace(address)

	if network == "" {
		return "", &InvalidAccountError{Address: address, Network: network, Reason: "empty network"}
	}
	if address == "" {
		return "", &InvalidAccountError{Address: address, Network: network, Reason: "empty address"}
	}

	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		hexPart := strings.ToLower(address[2:])
		if hexPart == "" {
			return "", &InvalidAccountError{Address: address, Network: network, Reason: "empty hex address"}
		}
		if len(hexPart) > hexAddressWidth {
			return "", &InvalidAccountError{Address: address, Network: network, Reason: "hex address too long"}
		}
		for _, c := range hexPart {
			if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
				return "", &InvalidAccountError{Address: address, Network: network, Reason: "non-hex character in address"}
			}
		}
		padded := strings.Repeat("0", hexAddressWidth-len(hexPart)) + hexPart
		return Key(network + ":0x" + padded), nil
	}

	return Key(network + ":" + address), nil
}

// Network returns the network tag of the key.
func (k Key) Network() string {
	if i := strings.IndexByte(string(k), ':'); i >= 0 {
		return string(k)[:i]
	}
	return ""
}

// Address returns the address part of the key.
func (k Key) Address() string {
	if i := strings.IndexByte(string(k), ':'); i >= 0 {
		return string(k)[i+1:]
	}
	return string(k)
}
