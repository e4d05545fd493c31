// Package bridge implements the companion bridge orchestrator. It turns UI
// intents read from the settings store into relay commands, drives file
// transfer sessions, forwards batches to the host receiver, and publishes
// progress back to the settings store.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/sensorrelay/internal/app"
	"github.com/bft-labs/sensorrelay/internal/codec"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/internal/settings"
)

// Defaults.
const (
	DefaultWatchdogDelay      = 3 * time.Second
	DefaultForwardTimeout     = 4 * time.Second
	DefaultForwardConcurrency = 4
)

// Orchestrator errors.
var (
	ErrNoPeer          = errors.New("bridge: no peer channel")
	ErrTransferRunning = errors.New("bridge: transfer already running")
	ErrNoSession       = errors.New("bridge: no transfer in progress")
)

// Config holds orchestrator settings.
type Config struct {
	// FilePrefix selects the files a "send all" pass relays.
	FilePrefix string

	// WatchdogDelay is how long a session may go without progress before a
	// retry is suggested.
	WatchdogDelay time.Duration

	// ForwardTimeout bounds each batch post to the host.
	ForwardTimeout time.Duration

	// ForwardConcurrency bounds the number of in-flight batch posts.
	ForwardConcurrency int

	// DeleteAfterRelay deletes a file on the device once every batch was
	// acknowledged by the host.
	DeleteAfterRelay bool
}

func (c *Config) setDefaults() {
	if c.FilePrefix == "" {
		c.FilePrefix = domain.TrialPrefix
	}
	if c.WatchdogDelay <= 0 {
		c.WatchdogDelay = DefaultWatchdogDelay
	}
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = DefaultForwardTimeout
	}
	if c.ForwardConcurrency <= 0 {
		c.ForwardConcurrency = DefaultForwardConcurrency
	}
}

// Orchestrator coordinates the device, the host receiver and the UI.
type Orchestrator struct {
	settings  ports.SettingsStore
	host      ports.HostClient
	endpoints ports.EndpointSource
	logger    ports.Logger
	cfg       Config

	mu      sync.Mutex
	peer    ports.PeerChannel
	files   []domain.Listing
	session *session

	progressMu sync.Mutex

	// transfers owns the single in-flight transfer or send-all pass.
	transfers app.Slot
}

// New creates an orchestrator.
func New(store ports.SettingsStore, host ports.HostClient, endpoints ports.EndpointSource, logger ports.Logger, cfg Config) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{
		settings:  store,
		host:      host,
		endpoints: endpoints,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run consumes UI intents until ctx is done. Intents already present in the
// store when Run starts are consumed too.
func (o *Orchestrator) Run(ctx context.Context) error {
	changes := o.settings.Subscribe(ctx)
	defer func() {
		o.transfers.Cancel()
		o.transfers.Wait()
	}()

	for _, key := range settings.IntentKeys() {
		o.consume(ctx, key)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if !c.Removed {
				o.consume(ctx, c.Key)
			}
		}
	}
}

// Serve attaches a peer channel and handles device messages until ctx is
// done or the channel closes. On attach the file listing and recording state
// are requested.
func (o *Orchestrator) Serve(ctx context.Context, ch ports.PeerChannel) error {
	o.mu.Lock()
	o.peer = ch
	o.mu.Unlock()

	forwards := &errgroup.Group{}
	forwards.SetLimit(o.cfg.ForwardConcurrency)

	defer func() {
		o.mu.Lock()
		if o.peer == ch {
			o.peer = nil
		}
		o.mu.Unlock()
		forwards.Wait()
	}()

	o.reload(ctx)
	if err := o.command(ctx, domain.ActionQueryRecording, nil); err != nil {
		o.logger.Warn("failed to query recording state", ports.Err(err))
	}

	for {
		raw, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ports.ErrChannelClosed) {
				return nil
			}
			return err
		}

		msg, err := codec.Decode(raw)
		if err != nil {
			o.logger.Warn("dropping malformed message", ports.Err(err))
			continue
		}
		if msg.Kind == codec.KindBatch {
			o.onBatch(ctx, forwards, msg.Batch, msg.Payload)
			continue
		}
		o.onNotification(msg.Envelope)
	}
}

// Progress returns a snapshot of the active session.
func (o *Orchestrator) Progress() (Progress, bool) {
	s := o.currentSession()
	if s == nil {
		return Progress{}, false
	}
	return s.progress(), true
}

// Files returns the cached file listing.
func (o *Orchestrator) Files() []domain.Listing {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Listing(nil), o.files...)
}

func (o *Orchestrator) currentSession() *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// command sends a command envelope to the device.
func (o *Orchestrator) command(ctx context.Context, action domain.Action, payload any) error {
	o.mu.Lock()
	ch := o.peer
	o.mu.Unlock()
	if ch == nil {
		return ErrNoPeer
	}

	env, err := domain.NewEnvelope(action, payload)
	if err != nil {
		return err
	}
	msg, err := codec.EncodeCommand(env)
	if err != nil {
		return err
	}
	return ch.Send(ctx, msg)
}

// onNotification maintains the file listing and the recording flag.
func (o *Orchestrator) onNotification(env domain.Envelope) {
	switch env.Action {
	case domain.ActionFileListed:
		var l domain.Listing
		if err := env.DecodePayload(&l); err != nil {
			o.logger.Warn("dropping malformed notification", ports.Err(err))
			return
		}
		o.mu.Lock()
		replaced := false
		for i := range o.files {
			if o.files[i].Name == l.Name {
				o.files[i] = l
				replaced = true
			}
		}
		if !replaced {
			o.files = append(o.files, l)
		}
		o.mu.Unlock()
		o.publishFiles()

	case domain.ActionListComplete:
		o.logger.Debug("file listing complete", ports.Int("files", len(o.Files())))

	case domain.ActionFileDeleted:
		var target string
		if err := env.DecodePayload(&target); err != nil {
			o.logger.Warn("dropping malformed notification", ports.Err(err))
			return
		}
		o.mu.Lock()
		if target == domain.DeleteAll {
			o.files = nil
		} else {
			kept := o.files[:0]
			for _, f := range o.files {
				if f.Name != target {
					kept = append(kept, f)
				}
			}
			o.files = kept
		}
		o.mu.Unlock()
		o.logger.Info("device deleted file", ports.String("target", target))
		o.publishFiles()

	case domain.ActionRecordingState:
		var st domain.RecordingStatus
		if err := env.DecodePayload(&st); err != nil {
			o.logger.Warn("dropping malformed notification", ports.Err(err))
			return
		}
		o.publish(settings.KeyIsRecording, strconv.FormatBool(st.Recording()))

	default:
		o.logger.Warn("unknown notification", ports.String("action", string(env.Action)))
	}
}

// reload clears the cached listing and asks the device for a new one.
func (o *Orchestrator) reload(ctx context.Context) {
	o.mu.Lock()
	o.files = nil
	o.mu.Unlock()
	o.publishFiles()

	if err := o.command(ctx, domain.ActionListFiles, nil); err != nil {
		o.logger.Warn("failed to request file listing", ports.Err(err))
	}
}

func (o *Orchestrator) publishFiles() {
	files := o.Files()
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	o.publishJSON(settings.KeyFiles, names)
}

func (o *Orchestrator) publishJSON(key string, v []string) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		o.logger.Error("failed to encode setting", ports.String("key", key), ports.Err(err))
		return
	}
	o.publish(key, string(b))
}

func (o *Orchestrator) publish(key, value string) {
	if err := o.settings.Set(key, value); err != nil {
		o.logger.Warn("failed to publish setting", ports.String("key", key), ports.Err(err))
	}
}

func (o *Orchestrator) unpublish(key string) {
	if err := o.settings.Remove(key); err != nil {
		o.logger.Warn("failed to clear setting", ports.String("key", key), ports.Err(err))
	}
}
