// Package clamav wraps a clamd daemon behind the narrow verdict interface
// the intake pipeline needs. The daemon is the single source of truth for
// infection verdicts; when it cannot be reached the caller must fail closed,
// so unreachability is reported as ErrUnavailable rather than a clean result.
package clamav

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	clamd "github.com/dutchcoders/go-clamd"
)

// ErrUnavailable reports that the clamd daemon could not be reached or timed
// out. Callers must treat it as a scan failure, never as a clean verdict.
var ErrUnavailable = errors.New("clamav unavailable")

// Verdict is the outcome of scanning one payload.
type Verdict struct {
	Infected bool
	Threats  []string
}

// Config carries the clamd connection settings.
type Config struct {
	Host string
	Port int
}

// Client talks to a clamd daemon over its TCP socket. clamd opens a fresh
// connection per command, so a single Client is safe for concurrent use.
type Client struct {
	clam *clamd.Clamd
}

// New constructs a Client for the configured daemon address.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("clamav host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid clamav port %d", cfg.Port)
	}
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	return &Client{clam: clamd.NewClamd(addr)}, nil
}

// Scan streams content to clamd and folds the daemon's responses into a
// single Verdict. Any FOUND response marks the verdict infected; ERROR
// responses are surfaced as scan faults.
func (c *Client) Scan(ctx context.Context, content []byte) (Verdict, error) {
	if c == nil || c.clam == nil {
		return Verdict{}, errors.New("nil client")
	}

	abort := make(chan bool)
	defer close(abort)

	results, err := c.clam.ScanStream(bytes.NewReader(content), abort)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return collect(ctx, results)
}

// Ping checks daemon liveness; used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.clam == nil {
		return errors.New("nil client")
	}

	done := make(chan error, 1)
	go func() { done <- c.clam.Ping() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}

func collect(ctx context.Context, results chan *clamd.ScanResult) (Verdict, error) {
	var verdict Verdict
	for {
		select {
		case res, ok := <-results:
			if !ok {
				return verdict, nil
			}
			switch res.Status {
			case clamd.RES_FOUND:
				verdict.Infected = true
				verdict.Threats = append(verdict.Threats, res.Description)
			case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
				return Verdict{}, fmt.Errorf("clamd: %s", res.Raw)
			}
		case <-ctx.Done():
			return Verdict{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}
}
