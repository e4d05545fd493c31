package bridge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
	"github.com/bft-labs/sensorrelay/internal/settings"
)

// consume takes an intent out of the store and acts on it. Removing the key
// lets the UI trigger the same value again.
func (o *Orchestrator) consume(ctx context.Context, key string) {
	if !settings.IsIntentKey(key) {
		return
	}
	value, ok := o.settings.Get(key)
	if !ok {
		return
	}
	o.unpublish(key)

	o.logger.Debug("intent received", ports.String("key", key), ports.String("value", value))

	switch key {
	case settings.KeySingleFileToAskFor:
		name := selectedFile(value)
		if name == "" {
			o.logger.Warn("ignoring empty file request", ports.String("value", value))
			return
		}
		o.startTransfer(ctx, func(ctx context.Context) {
			if err := o.transfer(ctx, name); err != nil {
				o.logger.Warn("transfer ended", ports.String("file", name), ports.Err(err))
			}
		})

	case settings.KeyAllFilesAction:
		switch value {
		case settings.ActionSend:
			o.startTransfer(ctx, o.sendAll)
		case settings.ActionReload:
			o.reload(ctx)
		case settings.ActionDelete:
			// Confirmation only; the UI follows up with deleteFile.
		default:
			o.logger.Warn("unknown bulk action", ports.String("value", value))
		}

	case settings.KeyDeleteFile:
		if err := o.command(ctx, domain.ActionDeleteFile, value); err != nil {
			o.logger.Warn("failed to request delete", ports.String("target", value), ports.Err(err))
		}

	case settings.KeyRecordCommand:
		cmd := domain.RecordingCommand(value)
		if cmd != domain.RecordingStart && cmd != domain.RecordingStop {
			o.logger.Warn("unknown recording command", ports.String("value", value))
			return
		}
		if err := o.command(ctx, domain.ActionSetRecording, cmd); err != nil {
			o.logger.Warn("failed to send recording command", ports.Err(err))
		}

	case settings.KeyRetrySendFile:
		if isTrue(value) {
			if err := o.retry(ctx); err != nil {
				o.logger.Warn("retry refused", ports.Err(err))
			}
		}

	case settings.KeyAbortTransfer:
		if isTrue(value) {
			o.abort()
		}
	}
}

// startTransfer runs fn as the single in-flight transfer. It is refused when
// another transfer is running, no host is known, or no device is attached.
func (o *Orchestrator) startTransfer(ctx context.Context, fn func(ctx context.Context)) {
	if _, ok := o.endpoints.Endpoint(); !ok {
		o.logger.Warn("transfer refused", ports.Err(domain.ErrNoEndpoint))
		return
	}
	o.mu.Lock()
	attached := o.peer != nil
	o.mu.Unlock()
	if !attached {
		o.logger.Warn("transfer refused", ports.Err(ErrNoPeer))
		return
	}
	if !o.transfers.TryRun(ctx, fn) {
		o.logger.Warn("transfer refused", ports.Err(ErrTransferRunning))
	}
}

// abort ends the active session and stops a running send-all pass.
func (o *Orchestrator) abort() {
	if s := o.currentSession(); s != nil {
		o.logger.Info("aborting transfer",
			ports.String("session", s.id),
			ports.String("file", s.name))
	}
	o.transfers.Cancel()
}

func isTrue(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

// selectedFile extracts the file name from a plain value or from a select
// widget value of the form {"values":[{"name":"..."}]}.
func selectedFile(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "{") {
		return value
	}
	var sel struct {
		Values []struct {
			Name string `json:"name"`
		} `json:"values"`
	}
	if err := json.Unmarshal([]byte(value), &sel); err != nil || len(sel.Values) == 0 {
		return ""
	}
	return sel.Values[0].Name
}
