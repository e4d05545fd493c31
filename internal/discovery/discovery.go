// Package discovery keeps track of a live host receiver on the local
// network.
//
// On every interval the current endpoint is probed first. When it does not
// answer, the endpoint is cleared and every candidate address is probed
// concurrently; the first one that answers with the host identity is
// adopted. While no endpoint is known, relay is suspended.
package discovery

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/sensorrelay/internal/app"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/internal/settings"
)

// Defaults.
const (
	DefaultInterval     = 10 * time.Second
	DefaultProbeTimeout = 4 * time.Second
	DefaultConcurrency  = 64
)

// DefaultCandidates are the ranges scanned when none are configured.
var DefaultCandidates = []string{"192.168.0.0/24", "192.168.1.0/24"}

// Config holds discovery settings.
type Config struct {
	// Candidates are CIDR ranges, addresses or host:port pairs.
	Candidates []string

	// Port is used for candidates without an explicit port.
	Port int

	Interval     time.Duration
	ProbeTimeout time.Duration

	// Concurrency bounds the number of probes in flight during a scan.
	Concurrency int
}

func (c *Config) setDefaults() {
	if len(c.Candidates) == 0 {
		c.Candidates = DefaultCandidates
	}
	if c.Port == 0 {
		c.Port = domain.DefaultHostPort
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
}

// Discovery maintains the current host endpoint.
type Discovery struct {
	client     ports.HostClient
	store      ports.SettingsStore
	logger     ports.Logger
	cfg        Config
	candidates []domain.Endpoint

	mu      sync.RWMutex
	current domain.Endpoint

	// passes owns the single running discovery pass.
	passes app.Slot
}

// New creates a discovery loop. store may be nil; when set, endpoint changes
// are published under settings.KeyHostIP.
func New(client ports.HostClient, store ports.SettingsStore, logger ports.Logger, cfg Config) (*Discovery, error) {
	cfg.setDefaults()
	candidates, err := ExpandCandidates(cfg.Candidates, cfg.Port)
	if err != nil {
		return nil, err
	}
	return &Discovery{
		client:     client,
		store:      store,
		logger:     logger,
		cfg:        cfg,
		candidates: candidates,
	}, nil
}

// Endpoint returns the current live endpoint, if any.
func (d *Discovery) Endpoint() (domain.Endpoint, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, !d.current.IsZero()
}

// Candidates returns the expanded candidate list.
func (d *Discovery) Candidates() []domain.Endpoint {
	return append([]domain.Endpoint(nil), d.candidates...)
}

// Run starts a pass immediately and then on every interval until ctx is
// done. A tick is skipped while the previous pass is still running.
func (d *Discovery) Run(ctx context.Context) error {
	d.logger.Info("host discovery started",
		ports.Int("candidates", len(d.candidates)),
		ports.Duration("interval", d.cfg.Interval))

	defer func() {
		d.passes.Cancel()
		d.passes.Wait()
	}()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.trigger(ctx)
		}
	}
}

// Pass runs one discovery pass and waits for it. If a pass is already
// running, Pass waits for that one instead.
func (d *Discovery) Pass(ctx context.Context) (domain.Endpoint, bool) {
	d.trigger(ctx)
	d.passes.Wait()
	return d.Endpoint()
}

func (d *Discovery) trigger(ctx context.Context) bool {
	if !d.passes.TryRun(ctx, d.pass) {
		d.logger.Debug("discovery pass already running")
		return false
	}
	return true
}

func (d *Discovery) pass(ctx context.Context) {
	if cur, ok := d.Endpoint(); ok {
		if d.probe(ctx, cur) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		d.logger.Warn("host receiver lost", ports.String("endpoint", cur.String()))
		d.setEndpoint(domain.Endpoint{})
	}

	start := time.Now()
	ep, ok := d.scan(ctx)
	if !ok {
		d.logger.Debug("no host receiver found",
			ports.Int("candidates", len(d.candidates)),
			ports.Duration("elapsed", time.Since(start)))
		return
	}
	d.setEndpoint(ep)
}

// scan probes every candidate concurrently and returns the first that
// answers with the host identity.
func (d *Discovery) scan(ctx context.Context) (domain.Endpoint, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once  sync.Once
		found domain.Endpoint
	)
	g := &errgroup.Group{}
	g.SetLimit(d.cfg.Concurrency)
	for _, ep := range d.candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if d.probe(ctx, ep) {
				once.Do(func() {
					found = ep
					cancel()
				})
			}
			return nil
		})
	}
	g.Wait()
	return found, !found.IsZero()
}

// probe reports whether ep answers with the host identity within the probe
// timeout.
func (d *Discovery) probe(ctx context.Context, ep domain.Endpoint) bool {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()

	id, err := d.client.Ping(ctx, ep)
	if err != nil {
		return false
	}
	if id != domain.HostIdentity {
		d.logger.Debug("unexpected ping response",
			ports.String("endpoint", ep.String()),
			ports.String("response", id))
		return false
	}
	return true
}

func (d *Discovery) setEndpoint(ep domain.Endpoint) {
	d.mu.Lock()
	prev := d.current
	d.current = ep
	d.mu.Unlock()

	if prev == ep {
		return
	}
	if !ep.IsZero() {
		d.logger.Info("host receiver found", ports.String("endpoint", ep.String()))
	}
	if d.store != nil {
		if err := d.store.Set(settings.KeyHostIP, ep.String()); err != nil {
			d.logger.Warn("failed to publish host endpoint", ports.Err(err))
		}
	}
}

var _ ports.EndpointSource = (*Discovery)(nil)
