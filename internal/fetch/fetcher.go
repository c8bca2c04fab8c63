// Package fetch performs single tile downloads from the remote tile host.
// It carries no cache and no retry policy; failed tiles are simply retried
// by the streaming layer the next time they show up in a desired set.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tilestream/internal/tile"
)

// Kind classifies a fetch failure.
type Kind int

const (
	KindTransport Kind = iota
	KindTimeout
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	default:
		return "transport"
	}
}

// Error is the failure type returned by Fetch.
type Error struct {
	Kind   Kind
	Coord  tile.Coordinate
	Status int // HTTP status for KindNotFound, zero otherwise
	cause  error
}

func (e *Error) Error() string {
	if e.Kind == KindNotFound {
		return fmt.Sprintf("fetch tile %s: %s (status %d)", e.Coord, e.Kind, e.Status)
	}
	return fmt.Sprintf("fetch tile %s: %s: %v", e.Coord, e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Fetcher downloads tile bytes over a shared HTTP client. It is safe for
// concurrent use.
type Fetcher struct {
	host      string
	userAgent string
	client    *http.Client
	log       *zap.Logger
}

func New(host string, timeout time.Duration, userAgent string, log *zap.Logger) *Fetcher {
	return &Fetcher{
		host:      host,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// Fetch downloads one tile. It returns the encoded image bytes or an
// *Error classifying the failure. A non-2xx response is KindNotFound.
func (f *Fetcher) Fetch(ctx context.Context, coord tile.Coordinate) ([]byte, error) {
	requestID := uuid.New().String()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coord.URL(f.host), nil)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Coord: coord, cause: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		f.log.Debug("tile fetch failed",
			zap.String("request_id", requestID),
			zap.Stringer("tile", coord),
			zap.Stringer("kind", kind),
			zap.Error(err))
		return nil, &Error{Kind: kind, Coord: coord, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		f.log.Debug("tile fetch rejected",
			zap.String("request_id", requestID),
			zap.Stringer("tile", coord),
			zap.Int("status", resp.StatusCode))
		return nil, &Error{Kind: KindNotFound, Coord: coord, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		kind := KindTransport
		if isTimeout(err) {
			kind = KindTimeout
		}
		return nil, &Error{Kind: kind, Coord: coord, cause: err}
	}

	f.log.Debug("tile fetched",
		zap.String("request_id", requestID),
		zap.Stringer("tile", coord),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}

func isTimeout(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return true
	}
	if t, ok := err.(interface{ Timeout() bool }); ok && t.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
