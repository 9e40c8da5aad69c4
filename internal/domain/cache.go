package domain

import (
	"context"
	"io"
	"time"
)

// RateCache stores live USD conversion rates per asset. Rates are micro-USD
// per whole token unit, ValueScale fixed point. It backs the live valuation
// source that can replace the static rate table.
type RateCache interface {
	SetRate(ctx context.Context, asset Address, rate int64, ts time.Time) error
	GetRate(ctx context.Context, asset Address) (int64, time.Time, error)
	GetRates(ctx context.Context, assets []Address) (map[Address]int64, error)
}

// LockManager provides distributed locking, used to fence the auto
// rebalancer when several replicas share one ledger journal.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter applies sliding-window rate limits keyed by an arbitrary
// string, used to throttle API clients.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for ledger and rebalance
// events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves old journal and audit rows from the database to cold
// storage.
type Archiver interface {
	ArchiveJournal(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
