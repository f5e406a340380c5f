// Package app is the dependency container wiring every long-lived
// component together and driving the graceful-shutdown sequence. Each
// component is constructed exactly once at startup and passed down
// explicitly, so tests can wire substitutes.
package app

import (
	"context"
	"log"
	"time"

	"github.com/ranggakrisnaa/activity-tracker-api/internal/analytics"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/auth"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/config"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/fanout"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/hits"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/ingestion"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/kv"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/overflow"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/prewarm"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/ratelimit"
	"github.com/ranggakrisnaa/activity-tracker-api/internal/store"
)

// App holds every component the HTTP layer and background workers need.
type App struct {
	Config *config.Config

	KV    *kv.Redis
	Store *store.Store

	Signer *auth.Signer
	Cipher *auth.Cipher

	Overflow *overflow.Buffer
	Pipeline *ingestion.Pipeline

	Limiter *ratelimit.Limiter

	Tracker   *hits.Tracker
	Analytics *analytics.Service
	Warmer    *prewarm.Warmer

	Publisher *fanout.Publisher
	Hub       *fanout.Hub

	retentionDone chan struct{}
}

// New wires every component from cfg. It does not start any background
// goroutine; call Start for that.
func New(cfg *config.Config) (*App, error) {
	gw, err := kv.Connect(kv.Options{
		WriterURL:      cfg.KVWriterURL,
		ReplicaURL:     cfg.KVReplicaURL,
		SentinelAddrs:  cfg.KVSentinelAddrs,
		SentinelMaster: cfg.KVSentinelMaster,
	})
	if err != nil {
		return nil, err
	}

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cipher, err := auth.NewCipher(cfg.EncryptionKeyHex)
	if err != nil {
		return nil, err
	}
	signer := auth.NewSigner(cfg.JWTSecret)

	ob := overflow.New(cfg.OverflowMaxSize, cfg.OverflowMaxAge)
	publisher := fanout.NewPublisher(gw)
	pipeline := ingestion.New(db, ob, publisher, cfg.BatchSize, cfg.BatchInterval)

	limiter := ratelimit.New(gw, cfg.DefaultRateLimit, cfg.RateLimitWindow)

	// tracker is always constructed (cheap, no background goroutine) so the
	// pre-warmer always has a valid HitTracker to call; whether its counters
	// actually get written is gated on cfg.HitTrackingEnabled below, at the
	// analytics service.
	tracker := hits.New(gw, cfg.HitTrackThreshold)

	analyticsTracker := tracker
	if !cfg.HitTrackingEnabled {
		analyticsTracker = nil
	}
	svc := analytics.New(db, gw, analyticsTracker, cfg.DailyCacheTTL, cfg.TopCacheTTL)

	var warmer *prewarm.Warmer
	if cfg.PrewarmCronEnable || cfg.PrewarmOnStartup {
		warmer = prewarm.New(svc, tracker)
	}

	hub := fanout.NewHub()

	return &App{
		Config:        cfg,
		KV:            gw,
		Store:         db,
		Signer:        signer,
		Cipher:        cipher,
		Overflow:      ob,
		Pipeline:      pipeline,
		Limiter:       limiter,
		Tracker:       tracker,
		Analytics:     svc,
		Warmer:        warmer,
		Publisher:     publisher,
		Hub:           hub,
		retentionDone: make(chan struct{}),
	}, nil
}

// Start launches every background goroutine: the ingestion flush timer and
// overflow cleanup sweep, the pre-warmer (startup pass plus scheduled
// ticker), the retention worker, and the fan-out hub's pub/sub
// subscription.
func (a *App) Start(ctx context.Context) error {
	a.Pipeline.Start()

	a.Store.StartRetentionWorker(a.Config.RetentionDays, a.retentionDone)

	if a.Warmer != nil {
		if a.Config.PrewarmOnStartup {
			go a.Warmer.RunStartup(ctx)
		}
		if a.Config.PrewarmCronEnable {
			a.Warmer.Start()
		}
	}

	if err := a.Hub.Start(ctx, a.KV); err != nil {
		log.Printf("app: fan-out hub subscription failed to start: %v", err)
	}

	return nil
}

// Shutdown stops the pre-warmer timer, closes the live-subscriber
// subscription, stops the ingestion timer and flushes once, then closes
// the KV and DB connections. Callers are expected to have already stopped
// accepting new HTTP connections and stopped the listener before calling
// this; a hard deadline is enforced via ctx, and when it expires before the
// sequence finishes Shutdown returns ctx's error.
func (a *App) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)

		if a.Warmer != nil {
			a.Warmer.Stop()
		}

		a.Hub.Stop()

		close(a.retentionDone)
		a.Pipeline.Shutdown()

		if err := a.KV.Close(); err != nil {
			log.Printf("app: kv close error: %v", err)
		}
		if err := a.Store.Close(); err != nil {
			log.Printf("app: store close error: %v", err)
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("app: shutdown deadline exceeded, forcing close")
		return ctx.Err()
	}

	return nil
}

// ShutdownTimeout is the hard deadline enforced on the shutdown sequence.
const ShutdownTimeout = 10 * time.Second
