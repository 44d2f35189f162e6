package repository

import (
	"time"

	"github.com/n-r-w/boundres"
)

// Option configures a repository.
type Option func(*settings)

// WithMaxAge makes cached records older than maxAge stale, so they are fetched again.
// By default, a cached record never goes stale.
func WithMaxAge(maxAge time.Duration) Option {
	return func(s *settings) {
		s.maxAge = maxAge
	}
}

// WithClock sets the time source used to stamp and age cached records.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithMediatorOptions passes options to every mediator the repository creates.
func WithMediatorOptions(opts ...boundres.Option) Option {
	return func(s *settings) {
		s.mediatorOpts = append(s.mediatorOpts, opts...)
	}
}

// settings are shared by all repositories.
type settings struct {
	maxAge       time.Duration
	now          func() time.Time
	mediatorOpts []boundres.Option
}

// newSettings applies opts on top of a pool of one disk executor, so the writes of a repository are serialized.
func newSettings(opts []Option) (settings, error) {
	disk, err := boundres.NewPoolExecutor(1)
	if err != nil {
		return settings{}, err
	}

	s := settings{
		now:          time.Now,
		mediatorOpts: []boundres.Option{boundres.WithDiskExecutor(disk)},
	}

	for _, opt := range opts {
		opt(&s)
	}

	return s, nil
}

func (s *settings) stale(fetchedAt time.Time) bool {
	return s.maxAge > 0 && s.now().Sub(fetchedAt) > s.maxAge
}
