package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bft-labs/sensorrelay/internal/domain"
	"github.com/bft-labs/sensorrelay/internal/ports"
)

// maxResponseBody caps how much of a host response is read.
const maxResponseBody = 4 << 10

// HostClient implements ports.HostClient over HTTP.
type HostClient struct {
	client ports.HTTPClient
	paths  domain.HostPaths
	logger ports.Logger
}

// NewHostClient creates a host client. Zero paths fall back to the defaults.
func NewHostClient(client ports.HTTPClient, paths domain.HostPaths, logger ports.Logger) *HostClient {
	def := domain.DefaultHostPaths()
	if paths.Batch == "" {
		paths.Batch = def.Batch
	}
	if paths.File == "" {
		paths.File = def.File
	}
	if paths.Ping == "" {
		paths.Ping = def.Ping
	}
	return &HostClient{
		client: client,
		paths:  paths,
		logger: logger,
	}
}

// PostBatch sends one batch payload and returns the acknowledged index.
func (c *HostClient) PostBatch(ctx context.Context, ep domain.Endpoint, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL()+c.paths.Batch, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", domain.ContentTypeOctetStream)

	body, err := c.do(req)
	if err != nil {
		return 0, err
	}
	return domain.ParseAck(body)
}

// PostFile sends a whole file with its name and batch size.
func (c *HostClient) PostFile(ctx context.Context, ep domain.Endpoint, filename string, batchSize int, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL()+c.paths.File, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", domain.ContentTypeOctetStream)
	req.Header.Set(domain.HeaderFilename, filename)
	req.Header.Set(domain.HeaderBatchSize, strconv.Itoa(batchSize))

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) != domain.FileStored {
		return fmt.Errorf("%w: unexpected file response %q", domain.ErrNetwork, body)
	}
	c.logger.Debug("file stored by host",
		ports.String("file", filename),
		ports.Int("bytes", len(data)))
	return nil
}

// Ping returns the identity token of the host.
func (c *HostClient) Ping(ctx context.Context, ep domain.Endpoint) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ep.BaseURL()+c.paths.Ping, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(body), nil
}

func (c *HostClient) do(req *http.Request) (string, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s %s: %v", domain.ErrNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	// Check response
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: server returned %d: %s", domain.ErrNetwork, resp.StatusCode, string(body))
	}
	return string(body), nil
}

var _ ports.HostClient = (*HostClient)(nil)
