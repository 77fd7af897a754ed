package datasrc

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ProbePolicy controls how Ping retries before giving up.
type ProbePolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultProbePolicy returns the probing defaults: quick first retries,
// bounded to ten seconds overall.
func DefaultProbePolicy() ProbePolicy {
	return ProbePolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsed:      10 * time.Second,
	}
}

// SetProbePolicy replaces the retry policy used by Ping.
func (ds *DataSource) SetProbePolicy(p ProbePolicy) { ds.probe = p }

// Ping probes the provider with exponential backoff until it answers or the
// policy's elapsed budget runs out. Configuration errors are not retried.
func (ds *DataSource) Ping(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = ds.probe.InitialInterval
	bo.MaxInterval = ds.probe.MaxInterval
	bo.MaxElapsedTime = ds.probe.MaxElapsed

	op := func() error {
		err := ds.provider.Ping(ctx)
		if err == nil {
			return nil
		}
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(bo, ctx))
}
