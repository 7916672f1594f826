package engine

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"
)

// Bootstrapper populates the AI service's vector store with metadata from
// the configured virtual databases at startup. It retries indefinitely until
// the load succeeds or the context is canceled; the HTTP server starts
// serving meanwhile.
type Bootstrapper struct {
	client     *Client
	params     url.Values
	retryEvery time.Duration
	logger     *slog.Logger
	ready      atomic.Bool
}

// NewBootstrapper creates a Bootstrapper loading metadata from the given
// virtual databases.
func NewBootstrapper(client *Client, databases []string, logger *slog.Logger) *Bootstrapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bootstrapper{
		client:     client,
		params:     MetadataParams(databases),
		retryEvery: 5 * time.Second,
		logger:     logger,
	}
}

// Ready reports whether the metadata load has completed.
func (b *Bootstrapper) Ready() bool { return b.ready.Load() }

// Start launches the metadata load in a goroutine tied to ctx.
func (b *Bootstrapper) Start(ctx context.Context) {
	go b.Run(ctx)
	b.logger.Info("engine: metadata bootstrap started")
}

// Run performs the metadata load loop. It returns when the load succeeds,
// when the upstream reports its store is already current, or when ctx is
// canceled. Every failure retries after the fixed interval.
func (b *Bootstrapper) Run(ctx context.Context) {
	for {
		load, err := b.client.LoadMetadata(ctx, b.params)
		switch {
		case err == nil && load.Current:
			b.logger.Info("engine: metadata already up to date")
			b.ready.Store(true)
			return
		case err == nil:
			b.logger.Info("engine: metadata loaded", "keys", len(load.Raw))
			b.ready.Store(true)
			return
		case ctx.Err() != nil:
			b.logger.Info("engine: metadata bootstrap stopped", "error", ctx.Err())
			return
		default:
			b.logger.Warn("engine: metadata load failed, retrying",
				"retry_in", b.retryEvery, "error", err)
		}

		timer := time.NewTimer(b.retryEvery)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info("engine: metadata bootstrap stopped", "error", ctx.Err())
			return
		case <-timer.C:
		}
	}
}
