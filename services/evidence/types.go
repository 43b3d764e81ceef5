package evidence

import (
	"time"

	"github.com/google/uuid"
)

// Upload is one decoded file upload plus its descriptive metadata. It is
// owned by exactly one pipeline invocation and never shared across requests.
type Upload struct {
	Filename    string
	Content     []byte
	Name        string
	Description string
}

// Evidence is the persisted record for an accepted upload.
type Evidence struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	S3Key       string    `json:"s3_key" db:"s3_key"`
	SHA256      string    `json:"sha256" db:"sha256"`
	Infected    bool      `json:"infected" db:"infected"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Result is the terminal outcome of one pipeline invocation. Exactly one of
// the stored and rejected shapes applies; failures are returned as errors
// carrying one of the sentinel kinds in errors.go.
type Result struct {
	EvidenceID uuid.UUID
	Rejected   bool
	Reason     string
}

// RejectionReason is the client-facing explanation for quarantined uploads.
const RejectionReason = "failed virus scan"
