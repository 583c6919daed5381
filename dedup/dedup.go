// Package dedup records which (subject, version) pairs have already been
// processed, so an unchanged "latest state" snapshot is not emitted twice.
//
// The Gate is check-then-act: Seen and Mark are separate calls and two
// callers racing on the same key can both observe Seen == false. It is not a
// lock. Callers needing strict exactly-once must add a uniqueness constraint
// downstream.
package dedup

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/mnbf9rca/eventhub-to-timescale/errors"
	"github.com/mnbf9rca/eventhub-to-timescale/pkg/retry"
)

// ErrInvalidMarker is returned for an empty subject or version.
var ErrInvalidMarker = stderrors.New("invalid dedup marker")

// Store is a set of keys partitioned by namespace. Both methods create the
// namespace on first use.
type Store interface {
	// Exists reports whether key is present in namespace.
	Exists(ctx context.Context, namespace, key string) (bool, error)
	// PutIfAbsent adds key to namespace. It reports whether the key was
	// newly added; an existing key is not an error.
	PutIfAbsent(ctx context.Context, namespace, key string) (bool, error)
}

// Gate answers "has this version of this subject been processed?".
type Gate struct {
	store  Store
	retry  retry.Config
	logger *slog.Logger
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithRetry overrides the retry policy applied to store calls.
func WithRetry(cfg retry.Config) GateOption {
	return func(g *Gate) { g.retry = cfg }
}

// WithLogger sets the gate's logger.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate returns a Gate over store.
func NewGate(store Store, opts ...GateOption) *Gate {
	g := &Gate{
		store:  store,
		retry:  retry.DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Seen reports whether version has already been marked for subject.
func (g *Gate) Seen(ctx context.Context, subject, version string) (bool, error) {
	if err := validMarker(subject, version); err != nil {
		return false, err
	}

	seen, err := retry.DoWithResult(ctx, g.retry, func() (bool, error) {
		return g.store.Exists(ctx, subject, version)
	})
	if err != nil {
		return false, errors.WrapTransient(err, "Gate", "Seen", fmt.Sprintf("check marker %s/%s", subject, version))
	}
	return seen, nil
}

// Mark records version for subject. Marking an existing key succeeds.
func (g *Gate) Mark(ctx context.Context, subject, version string) error {
	if err := validMarker(subject, version); err != nil {
		return err
	}

	added, err := retry.DoWithResult(ctx, g.retry, func() (bool, error) {
		return g.store.PutIfAbsent(ctx, subject, version)
	})
	if err != nil {
		return errors.WrapTransient(err, "Gate", "Mark", fmt.Sprintf("store marker %s/%s", subject, version))
	}
	if !added {
		g.logger.Debug("Dedup marker already present", "subject", subject, "version", version)
	}
	return nil
}

func validMarker(subject, version string) error {
	if subject == "" || version == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subject=%q version=%q", ErrInvalidMarker, subject, version),
			"Gate", "validate", "check marker")
	}
	return nil
}
