package policy

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	dErrors "custos/pkg/domain-errors"
)

// Store holds the current rule set snapshot behind an atomic pointer.
// Readers never lock: a decision loads the pointer once and evaluates against
// that snapshot for its whole lifetime. Reload is the single serialized
// mutation point and swaps in a complete snapshot or leaves the old one.
type Store struct {
	loader   Loader
	snap     atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	logger   *slog.Logger
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithLogger sets the logger for reload reporting.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore performs the initial load. A failure here is fatal configuration:
// the engine must not start without a valid rule set.
func NewStore(ctx context.Context, loader Loader, opts ...StoreOption) (*Store, error) {
	if loader == nil {
		panic("policy.NewStore: loader is required")
	}
	s := &Store{loader: loader}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := loader.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfig, "initial policy load failed")
	}
	s.snap.Store(snap)
	if s.logger != nil {
		s.logger.Info("policy rule set loaded",
			"policy_version", snap.Version,
			"rules", len(snap.Rules()),
		)
	}
	return s, nil
}

// Snapshot returns the current rule set. Callers keep using the returned
// snapshot even if a reload lands mid-evaluation.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Version reports the currently loaded policy version.
func (s *Store) Version() string {
	return s.snap.Load().Version
}

// Reload loads a fresh snapshot and swaps it in atomically. Safe to call
// concurrently and while decisions are in flight; on failure the previous
// snapshot stays active and the error carries CodeConfig.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := s.loader.Load(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("policy reload failed; previous snapshot stays active",
				"error", err,
				"policy_version", s.Version(),
			)
		}
		return dErrors.Wrap(err, dErrors.CodeConfig, "policy reload failed")
	}

	old := s.snap.Swap(snap)
	if s.logger != nil {
		s.logger.Info("policy rule set reloaded",
			"policy_version", snap.Version,
			"previous_version", old.Version,
			"rules", len(snap.Rules()),
		)
	}
	return nil
}
