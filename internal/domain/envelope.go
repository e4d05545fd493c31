package domain

import (
	"encoding/json"
	"fmt"
)

// Action names a relay command or notification.
type Action string

// Commands sent from the bridge to the device.
const (
	ActionListFiles      Action = "listFiles"
	ActionSendFile       Action = "sendFile"
	ActionDeleteFile     Action = "deleteFile"
	ActionSetRecording   Action = "setRecording"
	ActionQueryRecording Action = "queryRecording"
)

// Notifications sent from the device to the bridge.
const (
	ActionFileListed     Action = "listed_file"
	ActionListComplete   Action = "list_complete"
	ActionFileDeleted    Action = "deleted_file"
	ActionRecordingState Action = "recording_state"
)

// Envelope is a command message: an action and its JSON payload.
type Envelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope, encoding payload as JSON.
// A nil payload is encoded as JSON null.
func NewEnvelope(action Action, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return Envelope{Action: action, Payload: raw}, nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s: empty payload", ErrDecode, e.Action)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrDecode, e.Action, err)
	}
	return nil
}

// Listing announces one trial file held by the device.
type Listing struct {
	Name       string `json:"name"`
	BatchCount int    `json:"batchCount"`
}

// RecordingCommand is the payload of ActionSetRecording.
type RecordingCommand string

const (
	RecordingStart RecordingCommand = "start"
	RecordingStop  RecordingCommand = "stop"
)

// RecordingState is the capture state of a sensor group.
type RecordingState string

const (
	RecordingIdle   RecordingState = "idle"
	RecordingActive RecordingState = "recording"
)

// RecordingStatus is the payload of ActionRecordingState.
type RecordingStatus struct {
	State  RecordingState            `json:"state"`
	Groups map[string]RecordingState `json:"groups,omitempty"`
}

// Recording reports whether capture is active.
func (s RecordingStatus) Recording() bool {
	return s.State == RecordingActive
}
