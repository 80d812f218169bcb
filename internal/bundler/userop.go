// Package bundler frames ERC-4337 UserOperations for JSON-RPC submission to
// bundler endpoints.
package bundler

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Quantity is a numeric JSON-RPC value encoded as 0x-prefixed lowercase hex
// with no leading zeros. The zero value marshals as "0x0".
type Quantity uint64

// MarshalJSON implements json.Marshaler.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", q.Hex())), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// Hex renders the quantity as 0x-prefixed lowercase hex.
func (q Quantity) Hex() string {
	return "0x" + hexUint(uint64(q))
}

func hexUint(v uint64) string {
	if v == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// ParseQuantity parses a 0x-prefixed hex quantity.
func ParseQuantity(s string) (Quantity, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return 0, fmt.Errorf("quantity %q missing 0x prefix", s)
	}
	raw := s[2:]
	if raw == "" {
		return 0, fmt.Errorf("quantity %q has no digits", s)
	}
	v, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return 0, fmt.Errorf("quantity %q is not hex", s)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("quantity %q overflows uint64", s)
	}
	return Quantity(v.Uint64()), nil
}

// Bytes is a byte string encoded as 0x-prefixed lowercase hex. The empty
// value marshals as "0x".
type Bytes []byte

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + hex.EncodeToString(b) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return fmt.Errorf("byte string %q missing 0x prefix", s)
	}
	decoded, err := hex.DecodeString(s[2:])
	if err != nil {
		return fmt.Errorf("byte string %q: %w", s, err)
	}
	*b = decoded
	return nil
}

// UserOperation is the ERC-4337 pseudo-transaction relayed through a bundler
// to the on-chain EntryPoint. Absent byte fields serialize as "0x" and absent
// quantities as "0x0".
type UserOperation struct {
	Sender               string   `json:"sender"`
	Nonce                Quantity `json:"nonce"`
	InitCode             Bytes    `json:"initCode"`
	CallData             Bytes    `json:"callData"`
	CallGasLimit         Quantity `json:"callGasLimit"`
	VerificationGasLimit Quantity `json:"verificationGasLimit"`
	PreVerificationGas   Quantity `json:"preVerificationGas"`
	MaxFeePerGas         Quantity `json:"maxFeePerGas"`
	MaxPriorityFeePerGas Quantity `json:"maxPriorityFeePerGas"`
	PaymasterAndData     Bytes    `json:"paymasterAndData"`
	Signature            Bytes    `json:"signature"`
}

// Hash computes the userOpHash binding the operation to an entry point and
// chain: keccak256(keccak256(packedOp) ++ entryPoint ++ chainID).
func (op *UserOperation) Hash(entryPoint string, chainID uint64) (string, error) {
	entryPointBytes, err := decodeAddress(entryPoint)
	if err != nil {
		return "", fmt.Errorf("entry point: %w", err)
	}
	senderBytes, err := decodeAddress(op.Sender)
	if err != nil {
		return "", fmt.Errorf("sender: %w", err)
	}

	packed := make([]byte, 0, 32*11)
	packed = appendPadded(packed, senderBytes)
	packed = appendUint(packed, uint64(op.Nonce))
	packed = appendPadded(packed, keccak(op.InitCode))
	packed = appendPadded(packed, keccak(op.CallData))
	packed = appendUint(packed, uint64(op.CallGasLimit))
	packed = appendUint(packed, uint64(op.VerificationGasLimit))
	packed = appendUint(packed, uint64(op.PreVerificationGas))
	packed = appendUint(packed, uint64(op.MaxFeePerGas))
	packed = appendUint(packed, uint64(op.MaxPriorityFeePerGas))
	packed = appendPadded(packed, keccak(op.PaymasterAndData))

	outer := make([]byte, 0, 32*3)
	outer = appendPadded(outer, keccak(packed))
	outer = appendPadded(outer, entryPointBytes)
	outer = appendUint(outer, chainID)

	return "0x" + hex.EncodeToString(keccak(outer)), nil
}

func decodeAddress(addr string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	b, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("address %q is not hex", addr)
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("address %q is not 20 bytes", addr)
	}
	return b, nil
}

func keccak(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// appendPadded left-pads b to a 32-byte word and appends it.
func appendPadded(dst, b []byte) []byte {
	if len(b) < 32 {
		dst = append(dst, make([]byte, 32-len(b))...)
	}
	return append(dst, b...)
}

func appendUint(dst []byte, v uint64) []byte {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], v)
	return append(dst, word[:]...)
}
