package ports

import "io"

// TrialFile is an open trial file being read for relay.
type TrialFile interface {
	io.ReaderAt
	io.Closer

	// Size returns the file size in bytes at open time.
	Size() int64
}

// TrialWriter is an open trial file being recorded.
type TrialWriter interface {
	io.Writer
	io.Closer
}

// TrialStore holds trial files under one private storage root.
type TrialStore interface {
	// List returns the names of all stored files in lexical order.
	List() ([]string, error)

	// Open opens a stored file for reading.
	Open(name string) (TrialFile, error)

	// Create creates a new file for appending samples.
	Create(name string) (TrialWriter, error)

	// Remove deletes a stored file. Removing a missing file is not an error.
	Remove(name string) error
}
