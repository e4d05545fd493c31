package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Host receiver wire contract.
const (
	DefaultHostPort = 12345

	// HostIdentity is the body a host receiver answers pings with.
	HostIdentity = "SENSOR_RELAY_HOST"

	HeaderFilename  = "X-Relay-Filename"
	HeaderBatchSize = "X-Relay-Batch-Size"

	ContentTypeOctetStream = "application/octet-stream"

	// FileStored is the body returned once a bulk file is durably stored.
	FileStored = "OK"

	ackPrefix = "ACK:"
)

// HostPaths are the HTTP paths of a host receiver.
type HostPaths struct {
	Batch string
	File  string
	Ping  string
}

// DefaultHostPaths returns the standard host receiver paths.
func DefaultHostPaths() HostPaths {
	return HostPaths{
		Batch: "/relay/batch",
		File:  "/relay/file",
		Ping:  "/relay/ping",
	}
}

// FormatAck renders the acknowledgment token for a batch index.
func FormatAck(index int) string {
	return ackPrefix + strconv.Itoa(index)
}

// ParseAck extracts the batch index from an acknowledgment token.
func ParseAck(token string) (int, error) {
	token = strings.TrimSpace(token)
	if !strings.HasPrefix(token, ackPrefix) {
		return 0, fmt.Errorf("%w: unexpected ack %q", ErrNetwork, token)
	}
	i, err := strconv.Atoi(token[len(ackPrefix):])
	if err != nil || i < 0 {
		return 0, fmt.Errorf("%w: unexpected ack %q", ErrNetwork, token)
	}
	return i, nil
}
