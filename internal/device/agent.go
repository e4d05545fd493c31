// Package device implements the device agent: it answers relay commands
// received over the peer channel, streams stored trial files as batches, and
// runs the recording state machine.
package device

import (
	"context"
	"errors"
	"time"

	"github.com/bft-labs/sensorrelay/internal/app"
	"github.com/bft-labs/sensorrelay/internal/codec"
	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// DefaultPaceDelay is the pause between two batch sends.
const DefaultPaceDelay = 5 * time.Millisecond

// Agent executes relay commands against local trial storage.
type Agent struct {
	store    ports.TrialStore
	recorder *Recorder
	logger   ports.Logger

	pace   time.Duration
	prefix string

	// sends owns the single file streaming loop.
	sends app.Slot
}

// Option configures an Agent.
type Option func(*Agent)

// WithPaceDelay sets the pause between batch sends. Zero disables pacing.
func WithPaceDelay(d time.Duration) Option {
	return func(a *Agent) {
		if d >= 0 {
			a.pace = d
		}
	}
}

// WithFilePrefix sets the prefix that selects trial files for "delete all".
func WithFilePrefix(prefix string) Option {
	return func(a *Agent) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// New creates an agent over store, recording from sources.
func New(store ports.TrialStore, sources []ports.SensorSource, logger ports.Logger, opts ...Option) *Agent {
	a := &Agent{
		store:    store,
		recorder: NewRecorder(store, sources, logger),
		logger:   logger,
		pace:     DefaultPaceDelay,
		prefix:   domain.TrialPrefix,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recorder returns the agent's recording state machine.
func (a *Agent) Recorder() *Recorder {
	return a.recorder
}

// Serve handles commands arriving on ch until ctx is done or the channel
// closes. A running file send is cancelled before Serve returns. Recording
// is not affected by the channel going away.
func (a *Agent) Serve(ctx context.Context, ch ports.PeerChannel) error {
	defer func() {
		a.sends.Cancel()
		a.sends.Wait()
	}()

	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ports.ErrChannelClosed) {
				return nil
			}
			return err
		}
		a.handle(ctx, ch, msg)
	}
}

// Close stops recording and any running file send.
func (a *Agent) Close() {
	a.sends.Cancel()
	a.sends.Wait()
	a.recorder.Stop()
}

func (a *Agent) handle(ctx context.Context, ch ports.PeerChannel, raw []byte) {
	msg, err := codec.Decode(raw)
	if err != nil {
		a.logger.Warn("dropping malformed message", ports.Err(err))
		return
	}
	if msg.Kind != codec.KindCommand {
		a.logger.Warn("dropping unexpected batch message")
		return
	}

	env := msg.Envelope
	a.logger.Debug("command received", ports.String("action", string(env.Action)))

	switch env.Action {
	case domain.ActionListFiles:
		a.listFiles(ctx, ch)

	case domain.ActionSendFile:
		var name string
		if err := env.DecodePayload(&name); err != nil {
			a.logger.Warn("dropping malformed command", ports.Err(err))
			return
		}
		a.sends.Replace(ctx, func(ctx context.Context) {
			a.sendFile(ctx, ch, name)
		})

	case domain.ActionDeleteFile:
		var target string
		if err := env.DecodePayload(&target); err != nil {
			a.logger.Warn("dropping malformed command", ports.Err(err))
			return
		}
		a.deleteFile(ctx, ch, target)

	case domain.ActionSetRecording:
		var cmd domain.RecordingCommand
		if err := env.DecodePayload(&cmd); err != nil {
			a.logger.Warn("dropping malformed command", ports.Err(err))
			return
		}
		a.setRecording(ctx, ch, cmd)

	case domain.ActionQueryRecording:
		a.reply(ctx, ch, domain.ActionRecordingState, a.recorder.Status())

	default:
		a.logger.Warn("unknown command", ports.String("action", string(env.Action)))
	}
}

func (a *Agent) setRecording(ctx context.Context, ch ports.PeerChannel, cmd domain.RecordingCommand) {
	var status domain.RecordingStatus
	switch cmd {
	case domain.RecordingStart:
		st, err := a.recorder.Start()
		if err != nil {
			a.logger.Error("failed to start recording", ports.Err(err))
		}
		status = st
	case domain.RecordingStop:
		status = a.recorder.Stop()
	default:
		a.logger.Warn("unknown recording command", ports.String("command", string(cmd)))
		status = a.recorder.Status()
	}
	a.reply(ctx, ch, domain.ActionRecordingState, status)
}

// reply sends a notification envelope. Send failures are logged only; the
// bridge recovers through its own retry path.
func (a *Agent) reply(ctx context.Context, ch ports.PeerChannel, action domain.Action, payload any) bool {
	env, err := domain.NewEnvelope(action, payload)
	if err != nil {
		a.logger.Error("failed to build reply", ports.String("action", string(action)), ports.Err(err))
		return false
	}
	msg, err := codec.EncodeCommand(env)
	if err != nil {
		a.logger.Error("failed to encode reply", ports.String("action", string(action)), ports.Err(err))
		return false
	}
	if err := ch.Send(ctx, msg); err != nil {
		a.logger.Warn("failed to send reply", ports.String("action", string(action)), ports.Err(err))
		return false
	}
	return true
}
