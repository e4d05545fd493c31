// Package settings provides the reactive key-value store shared between the
// UI and the bridge, and the names of the keys they exchange.
package settings

// Keys written by the UI.
const (
	KeySingleFileToAskFor = "singleFileToAskFor"
	KeyAllFilesAction     = "allFilesAction"
	KeyDeleteFile         = "deleteFile"
	KeyRecordCommand      = "recordCommand"
	KeyRetrySendFile      = "retrySendFile"
	KeyAbortTransfer      = "abortTransfer"
)

// Keys written by the bridge.
const (
	KeyFiles                    = "files"
	KeyIsRecording              = "isRecording"
	KeySuggestRetrySendFile     = "suggestRetrySendFile"
	KeyFileBeingTransferred     = "fileBeingTransferred"
	KeyNextFilesToBeTransferred = "nextFilesToBeTransferred"
	KeyBatchCount               = "batchCount"
	KeyBatchesSent              = "batchesSent"
	KeyBatchesReceived          = "batchesReceived"
	KeyHostIP                   = "hostIp"
)

// Values of KeyAllFilesAction.
const (
	ActionSend   = "send"
	ActionReload = "reload"
	ActionDelete = "delete"
)

var intentKeys = []string{
	KeySingleFileToAskFor,
	KeyAllFilesAction,
	KeyDeleteFile,
	KeyRecordCommand,
	KeyRetrySendFile,
	KeyAbortTransfer,
}

// IntentKeys returns the keys the UI writes to trigger bridge actions.
func IntentKeys() []string {
	return append([]string(nil), intentKeys...)
}

// IsIntentKey reports whether key is one of IntentKeys.
func IsIntentKey(key string) bool {
	for _, k := range intentKeys {
		if k == key {
			return true
		}
	}
	return false
}
