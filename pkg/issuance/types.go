package issuance

import (
	"context"
	"crypto/x509"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("issuance store is closed")

// Record describes one issued certificate.
type Record struct {
	ID           string
	Serial       string
	Subject      string
	Issuer       string
	NotBefore    time.Time
	NotAfter     time.Time
	IssuedAt     time.Time
	PeerSubject  string
	PeerSerial   string
	ConnectionID string
	Channel      string
}

// NewRecord builds a record for leaf, issued for peer (which may be nil).
func NewRecord(leaf, peer *x509.Certificate, issuedAt time.Time) *Record {
	r := &Record{
		ID:        uuid.NewString(),
		Serial:    leaf.SerialNumber.Text(16),
		Subject:   leaf.Subject.String(),
		Issuer:    leaf.Issuer.String(),
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		IssuedAt:  issuedAt,
	}
	if peer != nil {
		r.PeerSubject = peer.Subject.String()
		r.PeerSerial = peer.SerialNumber.Text(16)
	}
	return r
}

// Query filters records. Zero fields do not filter.
type Query struct {
	// Subject matches records whose subject contains the string.
	Subject string

	// Serial matches a serial number exactly (hex, lowercase).
	Serial string

	// Since and Until bound IssuedAt, inclusive.
	Since time.Time
	Until time.Time

	// Limit caps the result size. 0 means no limit.
	Limit int
}

// Store persists issuance records. Results are ordered by IssuedAt, newest
// first.
type Store interface {
	Record(ctx context.Context, r *Record) error
	Query(ctx context.Context, q *Query) ([]*Record, error)
	Count(ctx context.Context, q *Query) (int64, error)

	// DeleteIssuedBefore removes records issued before t and returns how
	// many were deleted.
	DeleteIssuedBefore(ctx context.Context, t time.Time) (int64, error)

	Close() error
}

func (q *Query) matches(r *Record) bool {
	if q == nil {
		return true
	}
	if q.Subject != "" && !containsFold(r.Subject, q.Subject) {
		return false
	}
	if q.Serial != "" && r.Serial != q.Serial {
		return false
	}
	if !q.Since.IsZero() && r.IssuedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && r.IssuedAt.After(q.Until) {
		return false
	}
	return true
}
