package evidence

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestStorageKey(t *testing.T) {
	id := uuid.MustParse("a7a389fa-3b2c-4a7e-9c1d-2f6e8b4d0c5a")

	tests := []struct {
		name     string
		filename string
		now      time.Time
		want     string
	}{
		{
			name:     "zero pads month and day",
			filename: "environment.pdf",
			now:      time.Date(2024, time.March, 7, 10, 30, 0, 0, time.UTC),
			want:     "2024/03/07/" + id.String() + "/environment.pdf",
		},
		{
			name:     "two digit month and day unchanged",
			filename: "a.txt",
			now:      time.Date(2025, time.November, 21, 0, 0, 0, 0, time.UTC),
			want:     "2025/11/21/" + id.String() + "/a.txt",
		},
		{
			name:     "path components stripped from filename",
			filename: "../../etc/passwd",
			now:      time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC),
			want:     "2024/03/07/" + id.String() + "/passwd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storageKey(id, tt.filename, tt.now)
			if got != tt.want {
				t.Fatalf("storageKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStorageKeyDeterministic(t *testing.T) {
	id := uuid.New()
	now := time.Date(2024, time.June, 2, 15, 4, 5, 0, time.UTC)

	first := storageKey(id, "report.docx", now)
	second := storageKey(id, "report.docx", now)
	if first != second {
		t.Fatalf("storageKey() not deterministic: %q != %q", first, second)
	}

	want := fmt.Sprintf("2024/06/02/%s/report.docx", id)
	if first != want {
		t.Fatalf("storageKey() = %q, want %q", first, want)
	}
}
