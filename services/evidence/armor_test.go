package evidence

import (
	"bytes"
	"io"
	"testing"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
)

func TestArmorSealRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	armor, err := NewArmor(identity.Recipient().String())
	if err != nil {
		t.Fatalf("NewArmor() error = %v", err)
	}

	plain := bytes.Repeat([]byte("quarantined payload "), 128)
	sealed, err := armor.Seal(plain)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Contains(sealed, []byte("quarantined payload")) {
		t.Fatal("sealed output contains plaintext")
	}

	dec, err := age.Decrypt(bytes.NewReader(sealed), identity)
	if err != nil {
		t.Fatalf("age decrypt: %v", err)
	}
	zr, err := zstd.NewReader(dec)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer zr.Close()

	recovered, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read sealed payload: %v", err)
	}
	if !bytes.Equal(recovered, plain) {
		t.Fatal("recovered payload does not match original")
	}
}

func TestArmorKeySuffix(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	armor, err := NewArmor(identity.Recipient().String())
	if err != nil {
		t.Fatalf("NewArmor() error = %v", err)
	}

	got := armor.Key("2024/03/07/id/a.txt")
	if got != "2024/03/07/id/a.txt.zst.age" {
		t.Fatalf("Key() = %q", got)
	}
}

func TestNewArmorRejectsBadRecipient(t *testing.T) {
	tests := []struct {
		name      string
		recipient string
	}{
		{name: "empty", recipient: ""},
		{name: "whitespace", recipient: "   "},
		{name: "garbage", recipient: "not-an-age-recipient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewArmor(tt.recipient); err == nil {
				t.Fatal("NewArmor() expected error")
			}
		})
	}
}
