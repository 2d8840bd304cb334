package occclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotFound is returned when the server does not know the device or kernel.
var ErrNotFound = errors.New("not found")

// ErrBadRequest is returned when the server rejects the query as invalid.
var ErrBadRequest = errors.New("bad request")

// Client talks to an occupancy advisor over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new Client. A nil http.Client means http.DefaultClient.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Query runs one advisor query and decodes the result into out.
func (c *Client) Query(ctx context.Context, queryType string, payload, out interface{}) error {
	body, err := json.Marshal(Query{Type: queryType, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/query", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

// Devices lists the server's device presets.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp DevicesResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

func (c *Client) BlockSize(ctx context.Context, req BlockSizeRequest) (*BlockSizeResponse, error) {
	var resp BlockSizeResponse
	if err := c.Query(ctx, TypeBlockSize, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ActiveBlocks(ctx context.Context, req ActiveBlocksRequest) (*ActiveBlocksResponse, error) {
	var resp ActiveBlocksResponse
	if err := c.Query(ctx, TypeActiveBlocks, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) DynamicSmem(ctx context.Context, req DynamicSmemRequest) (*DynamicSmemResponse, error) {
	var resp DynamicSmemResponse
	if err := c.Query(ctx, TypeDynamicSmem, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Sweep(ctx context.Context, req SweepRequest) (*SweepResponse, error) {
	var resp SweepResponse
	if err := c.Query(ctx, TypeSweep, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		text := strings.TrimSpace(string(msg))
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, text)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrBadRequest, text)
		default:
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, text)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
