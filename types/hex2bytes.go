package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func HexToBytes(hexStr string) ([]byte, error) {
	if strings.HasPrefix(hexStr, "0x") {
		hexStr = hexStr[2:]
	}
	return hex.DecodeString(hexStr)
}

// HexBytes is a byte string written as 0x-prefixed hex in config files.
type HexBytes []byte

func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	if !isHex(string(text)) {
		return fmt.Errorf("invalid hex string: %s", text)
	}
	bz, err := HexToBytes(string(text))
	if err != nil {
		return err
	}
	*b = bz
	return nil
}

// Root returns b as a Root, failing unless it is exactly 32 bytes.
func (b HexBytes) Root() (Root, error) {
	var r Root
	if len(b) != len(r) {
		return r, fmt.Errorf("expected %d bytes, got %d", len(r), len(b))
	}
	copy(r[:], b)
	return r, nil
}

func isHex(s string) bool {
	v := strings.TrimPrefix(s, "0x")
	if len(v)%2 != 0 {
		return false
	}
	for _, c := range []byte(v) {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
