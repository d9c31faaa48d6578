// Package sessionservice implements the session registry, the note and file
// collections, the upload quota gate and the expiry sweep on top of the
// relational store and the blob provider.
package sessionservice

import (
	"crypto/rand"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/nocel/internal/dbx"
	"github.com/starford/nocel/internal/models"
	"github.com/starford/nocel/internal/sse"
	"github.com/starford/nocel/internal/storage"
)

// DefaultQuota is the per-session storage cap (140 MiB).
const DefaultQuota int64 = 140 << 20

// Notifier receives change notifications. *sse.Broker implements it.
type Notifier interface {
	PublishChange(sse.Change)
}

// Service coordinates the store and the blob provider.
type Service struct {
	pool   dbx.Handle
	blobs  storage.Provider
	quota  int64
	log    *slog.Logger
	now    func() time.Time
	events Notifier
	codes  func() (string, error)
	suffix func() string
}

// Option configures a Service.
type Option func(*Service)

// WithQuota sets the per-session cap in bytes. Zero or less disables the quota.
func WithQuota(limit int64) Option {
	return func(s *Service) { s.quota = limit }
}

// WithLogger sets the logger used for swallowed errors.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier publishes changes to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.events = n }
}

// WithCodeSource replaces the private code generator.
func WithCodeSource(gen func() (string, error)) Option {
	return func(s *Service) { s.codes = gen }
}

// New creates a session service. pool is used whenever the request context
// carries no scoped connection.
func New(pool dbx.Handle, blobs storage.Provider, opts ...Option) *Service {
	s := &Service{
		pool:   pool,
		blobs:  blobs,
		quota:  DefaultQuota,
		log:    slog.Default(),
		now:    time.Now,
		codes:  randomCode,
		suffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// Quota returns the configured cap, zero when disabled.
func (s *Service) Quota() int64 {
	return max(s.quota, 0)
}

func (s *Service) notify(kind string, sess *models.Session, id int64) {
	if s.events == nil {
		return
	}
	s.events.PublishChange(sse.Change{
		Kind:        kind,
		SessionType: string(sess.Type),
		Session:     sess.Name,
		ID:          id,
	})
}

// randomCode returns a 4-digit code in [1000, 9999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+1000, 10), nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
