package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/internal/settings"
)

// sendAll relays every listed file matching the prefix, one at a time.
func (o *Orchestrator) sendAll(ctx context.Context) {
	var queue []string
	for _, f := range o.Files() {
		if domain.IsTrial(f.Name, o.cfg.FilePrefix) {
			queue = append(queue, f.Name)
		}
	}
	o.logger.Info("sending all files", ports.Int("files", len(queue)))

	defer o.publishJSON(settings.KeyNextFilesToBeTransferred, nil)

	for i, name := range queue {
		if ctx.Err() != nil {
			o.logger.Info("send all aborted", ports.Int("remaining", len(queue)-i))
			return
		}
		o.publishJSON(settings.KeyNextFilesToBeTransferred, queue[i+1:])
		if err := o.transfer(ctx, name); err != nil {
			o.logger.Warn("transfer ended", ports.String("file", name), ports.Err(err))
		}
	}
}

// transfer relays one file and blocks until every batch is acknowledged or
// ctx is done.
func (o *Orchestrator) transfer(ctx context.Context, name string) error {
	count := unknownCount
	for _, f := range o.Files() {
		if f.Name == name {
			count = f.BatchCount
		}
	}

	s := newSession(name, count)
	o.mu.Lock()
	o.session = s
	o.mu.Unlock()

	logger := o.logger.With(ports.String("session", s.id), ports.String("file", name))
	logger.Info("transfer started", ports.Int("batches", count))
	start := time.Now()

	o.publish(settings.KeyFileBeingTransferred, name)
	defer func() {
		s.abort()
		o.mu.Lock()
		if o.session == s {
			o.session = nil
		}
		o.mu.Unlock()
		o.unpublish(settings.KeyFileBeingTransferred)
	}()

	o.startAttempt(ctx, s)

	select {
	case <-s.done:
	case <-ctx.Done():
		p := s.progress()
		logger.Info("transfer aborted",
			ports.Int("sent", p.Sent),
			ports.Int("acked", p.Acked))
		return ctx.Err()
	}

	if !s.complete() {
		return fmt.Errorf("transfer of %s did not complete", name)
	}
	p := s.progress()
	logger.Info("transfer complete",
		ports.Int("batches", p.BatchCount),
		ports.Int("attempts", p.Attempt),
		ports.Duration("elapsed", time.Since(start)))

	if o.cfg.DeleteAfterRelay {
		if err := o.command(ctx, domain.ActionDeleteFile, name); err != nil {
			logger.Warn("failed to delete relayed file", ports.Err(err))
		}
	}
	return nil
}

// retry restarts the active session from batch 0.
func (o *Orchestrator) retry(ctx context.Context) error {
	s := o.currentSession()
	if s == nil || !o.startAttempt(ctx, s) {
		return ErrNoSession
	}
	o.logger.Info("retrying transfer",
		ports.String("session", s.id),
		ports.String("file", s.name))
	return nil
}

// startAttempt clears progress, asks the device for the file and arms the
// watchdog. A file with no batches completes without a request. It returns
// false, publishing nothing, when the session is already over.
func (o *Orchestrator) startAttempt(ctx context.Context, s *session) bool {
	attempt, ok := s.restart()
	if !ok {
		return false
	}
	o.publishProgress(s)
	o.publish(settings.KeySuggestRetrySendFile, "false")

	select {
	case <-s.done:
		return true
	default:
	}

	if err := o.command(ctx, domain.ActionSendFile, s.name); err != nil {
		o.logger.Warn("failed to request file",
			ports.String("session", s.id),
			ports.Int("attempt", attempt),
			ports.Err(err))
	}
	o.armWatchdog(s)
	return true
}

func (o *Orchestrator) armWatchdog(s *session) {
	s.arm(o.cfg.WatchdogDelay, func() {
		if o.currentSession() != s || !s.markSuggested() {
			return
		}
		p := s.progress()
		o.logger.Warn("transfer stalled, suggesting retry",
			ports.String("session", s.id),
			ports.String("file", s.name),
			ports.Int("sent", p.Sent),
			ports.Int("acked", p.Acked))
		o.publish(settings.KeySuggestRetrySendFile, "true")
	})
}

// onBatch records a batch from the device and forwards it to the host.
func (o *Orchestrator) onBatch(ctx context.Context, forwards *errgroup.Group, b domain.Batch, payload []byte) {
	s := o.currentSession()
	if s == nil || b.Filename != s.name {
		o.logger.Debug("dropping batch outside session",
			ports.String("file", b.Filename),
			ports.Int("batch", int(b.Index)))
		return
	}

	index := int(b.Index)
	attempt, cleared, ok := s.recordSent(index, int(b.Count))
	if !ok {
		return
	}
	o.armWatchdog(s)
	if cleared {
		o.publish(settings.KeySuggestRetrySendFile, "false")
	}
	o.publishProgress(s)

	ep, ok := o.endpoints.Endpoint()
	if !ok {
		o.logger.Debug("no host endpoint, batch not forwarded", ports.Int("batch", index))
		return
	}

	body := append([]byte(nil), payload...)
	forwards.Go(func() error {
		o.forward(ctx, s, attempt, ep, index, body)
		return nil
	})
}

// forward posts one batch. A failed post is left to the watchdog and retry.
func (o *Orchestrator) forward(ctx context.Context, s *session, attempt int, ep domain.Endpoint, index int, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ForwardTimeout)
	defer cancel()

	acked, err := o.host.PostBatch(ctx, ep, payload)
	if err != nil {
		o.logger.Warn("batch not acknowledged",
			ports.String("session", s.id),
			ports.Int("batch", index),
			ports.Err(err))
		return
	}
	if acked != index {
		o.logger.Warn("host acknowledged a different batch",
			ports.String("session", s.id),
			ports.Int("batch", index),
			ports.Int("acked", acked))
	}
	if !s.recordAck(attempt, acked) {
		o.logger.Debug("ignoring stale acknowledgment",
			ports.String("session", s.id),
			ports.Int("attempt", attempt),
			ports.Int("batch", acked))
		return
	}
	o.publishProgress(s)
}

// publishProgress snapshots and publishes under one lock so concurrent
// forwards cannot leave an older count in the store.
func (o *Orchestrator) publishProgress(s *session) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()

	p := s.progress()
	if p.BatchCount != unknownCount {
		o.publish(settings.KeyBatchCount, strconv.Itoa(p.BatchCount))
	}
	o.publish(settings.KeyBatchesSent, strconv.Itoa(p.Sent))
	o.publish(settings.KeyBatchesReceived, strconv.Itoa(p.Acked))
}
