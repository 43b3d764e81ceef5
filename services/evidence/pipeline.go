package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"evidenced/pkg/clamav"
)

const (
	defaultScanTimeout   = 30 * time.Second
	defaultStoreTimeout  = 30 * time.Second
	defaultInsertTimeout = 5 * time.Second
	publishTimeout       = 2 * time.Second

	// SubjectStored and SubjectQuarantined carry pipeline outcome events.
	SubjectStored      = "evidenced.evidence.stored"
	SubjectQuarantined = "evidenced.evidence.quarantined"

	actionQuarantined = "evidence.quarantined"
	actionOrphaned    = "evidence.orphaned"
)

// ObjectStore is the capability the pipeline needs from the object store.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Scanner is the capability the pipeline needs from the virus scanner.
// Implementations report unreachability via clamav.ErrUnavailable so the
// pipeline can distinguish an outage from a scanner-reported fault.
type Scanner interface {
	Scan(ctx context.Context, content []byte) (clamav.Verdict, error)
}

// Repository persists and retrieves evidence records. FindByID reports
// absence with ErrNotFound.
type Repository interface {
	Insert(ctx context.Context, ev Evidence) (uuid.UUID, error)
	FindByID(ctx context.Context, id uuid.UUID) (Evidence, error)
}

// Auditor records operational events for out-of-band reconciliation.
type Auditor interface {
	Record(ctx context.Context, action, obj string, details map[string]any) error
}

// Publisher announces pipeline outcomes on the event bus.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Deps holds the capabilities injected into a Pipeline. Objects, Scanner and
// Repo are required; Audit, Bus and Armor are optional.
type Deps struct {
	Objects ObjectStore
	Scanner Scanner
	Repo    Repository
	Audit   Auditor
	Bus     Publisher
	Armor   *Armor
}

// PipelineConfig controls bucket routing and per-call timeouts.
type PipelineConfig struct {
	QuarantineBucket string
	ScannedBucket    string
	ScanTimeout      time.Duration
	StoreTimeout     time.Duration
	InsertTimeout    time.Duration
}

// Pipeline runs the evidence intake sequence: derive a storage key, scan,
// route to the quarantine or scanned bucket, persist the record on the clean
// path. Each invocation is self-contained; a single Pipeline serves
// concurrent requests without locking.
type Pipeline struct {
	deps   Deps
	cfg    PipelineConfig
	logger *log.Logger
	now    func() time.Time
}

// NewPipeline validates dependencies and applies timeout defaults.
func NewPipeline(deps Deps, cfg PipelineConfig, logger *log.Logger) (*Pipeline, error) {
	if deps.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if deps.Scanner == nil {
		return nil, errors.New("scanner is required")
	}
	if deps.Repo == nil {
		return nil, errors.New("repository is required")
	}
	if cfg.QuarantineBucket == "" || cfg.ScannedBucket == "" {
		return nil, errors.New("quarantine and scanned buckets are required")
	}
	if cfg.ScanTimeout <= 0 {
		cfg.ScanTimeout = defaultScanTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.InsertTimeout <= 0 {
		cfg.InsertTimeout = defaultInsertTimeout
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Upload runs one intake invocation. The returned Result is terminal: either
// a stored evidence identifier or a rejection. Failures are returned as
// errors wrapping ErrScanUnavailable, ErrScanFailed, ErrStorage or
// ErrMetadata; no storage write happens before a verdict, and no record is
// written before a successful store.
func (p *Pipeline) Upload(ctx context.Context, up Upload) (Result, error) {
	uploadID := uuid.New()
	key := storageKey(uploadID, up.Filename, p.now().UTC())

	verdict, err := p.scan(ctx, up.Content)
	if err != nil {
		if errors.Is(err, clamav.ErrUnavailable) {
			return Result{}, fmt.Errorf("%w: %v", ErrScanUnavailable, err)
		}
		return Result{}, fmt.Errorf("%w: %v", ErrScanFailed, err)
	}

	if verdict.Infected {
		return p.quarantine(ctx, up, key, verdict)
	}

	p.logger.Printf("INFO found 0 threats in %q", up.Filename)
	return p.store(ctx, up, key)
}

func (p *Pipeline) quarantine(ctx context.Context, up Upload, key string, verdict clamav.Verdict) (Result, error) {
	p.logger.Printf("WARN found %d threats in %q: %s",
		len(verdict.Threats), up.Filename, strings.Join(verdict.Threats, ", "))

	body := up.Content
	if p.deps.Armor != nil {
		sealed, err := p.deps.Armor.Seal(up.Content)
		if err != nil {
			return Result{}, fmt.Errorf("%w: seal quarantine object: %v", ErrStorage, err)
		}
		body = sealed
		key = p.deps.Armor.Key(key)
	}

	if err := p.put(ctx, p.cfg.QuarantineBucket, key, body); err != nil {
		return Result{}, fmt.Errorf("%w: quarantine put %s/%s: %v", ErrStorage, p.cfg.QuarantineBucket, key, err)
	}

	p.audit(ctx, actionQuarantined, key, map[string]any{
		"bucket":   p.cfg.QuarantineBucket,
		"filename": up.Filename,
		"threats":  verdict.Threats,
	})
	p.publish(ctx, SubjectQuarantined, map[string]any{
		"s3_key":  key,
		"bucket":  p.cfg.QuarantineBucket,
		"threats": verdict.Threats,
	})

	return Result{Rejected: true, Reason: RejectionReason}, nil
}

func (p *Pipeline) store(ctx context.Context, up Upload, key string) (Result, error) {
	if err := p.put(ctx, p.cfg.ScannedBucket, key, up.Content); err != nil {
		return Result{}, fmt.Errorf("%w: scanned put %s/%s: %v", ErrStorage, p.cfg.ScannedBucket, key, err)
	}

	ev := Evidence{
		Filename:    up.Filename,
		Name:        up.Name,
		Description: up.Description,
		S3Key:       key,
		SHA256:      digest(up.Content),
		Infected:    false,
	}

	insertCtx, cancel := context.WithTimeout(ctx, p.cfg.InsertTimeout)
	defer cancel()

	id, err := p.deps.Repo.Insert(insertCtx, ev)
	if err != nil {
		// The object is durably stored with no record. Log and audit the
		// orphaned key so it can be reconciled out-of-band; no rollback.
		p.logger.Printf("ERROR evidence record insert failed, object orphaned at %s/%s: %v",
			p.cfg.ScannedBucket, key, err)
		p.audit(ctx, actionOrphaned, key, map[string]any{
			"bucket":   p.cfg.ScannedBucket,
			"filename": up.Filename,
		})
		return Result{}, fmt.Errorf("%w: %v", ErrMetadata, err)
	}

	p.publish(ctx, SubjectStored, map[string]any{
		"evidence_id": id,
		"s3_key":      key,
		"bucket":      p.cfg.ScannedBucket,
	})

	return Result{EvidenceID: id}, nil
}

func (p *Pipeline) scan(ctx context.Context, content []byte) (clamav.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ScanTimeout)
	defer cancel()
	return p.deps.Scanner.Scan(ctx, content)
}

func (p *Pipeline) put(ctx context.Context, bucket, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.deps.Objects.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), digest(body))
}

func (p *Pipeline) audit(ctx context.Context, action, obj string, details map[string]any) {
	if p.deps.Audit == nil {
		return
	}
	// Keep the audit write alive past request cancellation so orphaned keys
	// stay observable for reconciliation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.InsertTimeout)
	defer cancel()
	if err := p.deps.Audit.Record(ctx, action, obj, details); err != nil {
		p.logger.Printf("WARN audit record %s for %s failed: %v", action, obj, err)
	}
}

func (p *Pipeline) publish(ctx context.Context, subj string, v any) {
	if p.deps.Bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.deps.Bus.Publish(ctx, subj, v); err != nil {
		p.logger.Printf("WARN publish %s failed: %v", subj, err)
	}
}

func digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
