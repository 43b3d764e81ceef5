package evidence

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

// armorSuffix marks quarantined objects that were sealed before storage.
const armorSuffix = ".zst.age"

// Armor seals quarantined payloads so the quarantine bucket never holds live
// malware in plain form: content is zstd-compressed and age-encrypted to a
// configured recipient. Only the holder of the matching age identity can
// recover the original bytes for analysis.
type Armor struct {
	recipient *age.X25519Recipient
}

// NewArmor parses an age X25519 recipient string (age1...).
func NewArmor(recipient string) (*Armor, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, errors.New("age recipient is required")
	}
	parsed, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("parse age recipient: %w", err)
	}
	return &Armor{recipient: parsed}, nil
}

// Seal compresses and encrypts plain for quarantine storage.
func (a *Armor) Seal(plain []byte) ([]byte, error) {
	if a == nil || a.recipient == nil {
		return nil, errors.New("nil armor")
	}

	var buf bytes.Buffer
	enc, err := age.Encrypt(&buf, a.recipient)
	if err != nil {
		return nil, fmt.Errorf("age encrypt: %w", err)
	}

	zw, err := zstd.NewWriter(enc)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := zw.Write(plain); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zstd writer: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close age writer: %w", err)
	}

	return buf.Bytes(), nil
}

// Key returns the storage key for the sealed form of key.
func (a *Armor) Key(key string) string {
	return key + armorSuffix
}
