// Package hub carries the configuration every layer's Hub factory shares -
// the logger and the per-endpoint queue capacity - plus the teardown-time
// error collector session drivers use once their handler goroutines have
// been cancelled.
package hub

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dedis-lab/bcast/common/log"
	"github.com/dedis-lab/bcast/internal/endpoint"
)

// Config holds the knobs common to every layer's Hub. One Config is built
// per Hub from the options passed to its constructor.
type Config struct {
	Logger    log.Logger
	QueueSize int
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithLogger sets the logger every Communicator of the Hub scopes with
// Named/With. Defaults to an info-level JSON logger on stdout.
func WithLogger(l log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithQueueSize overrides the per-endpoint channel capacity. Defaults to
// endpoint.DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(c *Config) { c.QueueSize = n }
}

// NewConfig applies opts over the defaults.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		Logger:    log.New(nil, log.InfoLevel, true),
		QueueSize: endpoint.DefaultQueueSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CollectErrors drains, without blocking past window, any fatal errors
// reported on the given channels after the owning context has been
// cancelled, aggregating them with go-multierror. Abort is asynchronous, so
// there is no terminal flush to wait for - a quiet channel after one idle
// sweep means no error was reported in time, not that none occurred.
func CollectErrors(window time.Duration, chans ...<-chan error) error {
	var errs *multierror.Error
	deadline := time.After(window)
	for {
		select {
		case <-deadline:
			return errs.ErrorOrNil()
		default:
		}
		idle := true
		for _, ch := range chans {
			select {
			case e, ok := <-ch:
				if ok && e != nil {
					errs = multierror.Append(errs, e)
					idle = false
				}
			default:
			}
		}
		if idle {
			return errs.ErrorOrNil()
		}
	}
}
