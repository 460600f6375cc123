// Package migrators copies the resources of one identity tenant into another.
//
// Every resource kind has its own migrator that finds the destination
// counterpart of a source resource by natural key, creates or updates it and
// then decorates it with metadata and policies. TenantMigrator runs them in
// dependency order and finishes with the SubstitutionResolver, which repairs
// source hrefs embedded in custom data.
package migrators

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

// Env carries the collaborators shared by every migrator.
type Env struct {
	Source      stormpath.TenantAPI
	Destination stormpath.TenantAPI
	Logger      *zap.SugaredLogger
	Retry       RetryPolicy
	Metrics     *Metrics
}

func (e *Env) named(name string) *zap.SugaredLogger {
	if e.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return e.Logger.Named(name)
}

// retry runs fn under the retry policy, logging every transient failure with
// msg and the given context.
func (e *Env) retry(ctx context.Context, logger *zap.SugaredLogger, msg string, kv []interface{}, fn func() error) error {
	return e.Retry.Do(ctx, fn, func(err error, attempt int, wait time.Duration) {
		logger.Warnw(msg+", retrying", append(kv[:len(kv):len(kv)],
			"attempt", attempt,
			"wait", wait,
			"error", err)...)
	})
}

func call[T any](ctx context.Context, e *Env, logger *zap.SugaredLogger, msg string, kv []interface{}, fn func() (T, error)) (T, error) {
	var out T
	err := e.retry(ctx, logger, msg, kv, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

// settle logs a failure the run can survive and swallows it. Cancellation is
// handed back so the caller stops.
func settle(logger *zap.SugaredLogger, msg string, kv []interface{}, err error) error {
	if isCancelled(err) {
		return err
	}
	logger.Errorw(msg, append(kv[:len(kv):len(kv)], "error", err)...)
	return nil
}

func isCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// copyCustomData replays the sanitized custom data of a source resource onto
// its destination counterpart. An empty source is a no-op.
func (e *Env) copyCustomData(ctx context.Context, logger *zap.SugaredLogger, kv []interface{}, srcHref, dstHref string) (stormpath.CustomData, error) {
	if srcHref == "" || dstHref == "" {
		return nil, nil
	}
	data, err := call(ctx, e, logger, "Failed to fetch source custom data", kv, func() (stormpath.CustomData, error) {
		return e.Source.GetCustomData(ctx, srcHref)
	})
	if err != nil {
		return nil, err
	}
	clean := Sanitize(data)
	if len(clean) == 0 {
		return nil, nil
	}
	return call(ctx, e, logger, "Failed to copy custom data", kv, func() (stormpath.CustomData, error) {
		return e.Destination.UpdateCustomData(ctx, dstHref, clean)
	})
}
