package ports

import "context"

// Change is one update of a settings key. Value is empty when the key was removed.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// SettingsStore is the reactive key-value store shared between the UI and
// the bridge. Writes are last-write-wins per key with no multi-key atomicity.
type SettingsStore interface {
	// Get returns the value of key and whether it is set.
	Get(key string) (string, bool)

	// Set writes a value. Writing the current value again does not emit a change.
	Set(key, value string) error

	// Remove deletes key.
	Remove(key string) error

	// Subscribe returns an ordered stream of changes made after the call.
	// The channel is closed when ctx is done.
	Subscribe(ctx context.Context) <-chan Change
}
