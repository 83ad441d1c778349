package smartthings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the SmartThings public API root
const DefaultBaseURL = "https://api.smartthings.com/v1"

// Client is bound to one personal access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// Request performs an authorized HTTP request against the API
func (c *Client) Request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.httpClient.Do(req)
}

// call performs a request and returns the body of a 2xx response.
// Non-2xx responses become *TransportError with the body text attached.
func (c *Client) call(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.Request(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}

	return data, nil
}

// ListDevices returns all devices visible to the token
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	data, err := c.call(ctx, "listDevices", http.MethodGet, "devices", nil)
	if err != nil {
		return nil, err
	}

	var result listResponse[Device]
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("listDevices: failed to decode response: %w", err)
	}
	if result.Items == nil {
		return []Device{}, nil
	}
	return result.Items, nil
}

// ListScenes returns all scenes visible to the token
func (c *Client) ListScenes(ctx context.Context) ([]Scene, error) {
	data, err := c.call(ctx, "listScenes", http.MethodGet, "scenes", nil)
	if err != nil {
		return nil, err
	}

	var result listResponse[Scene]
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("listScenes: failed to decode response: %w", err)
	}
	if result.Items == nil {
		return []Scene{}, nil
	}
	return result.Items, nil
}

// GetStatus returns the full status document of a device.
// A body that is not a status object yields an empty Status, not an error.
func (c *Client) GetStatus(ctx context.Context, deviceID string) (*Status, error) {
	path := fmt.Sprintf("devices/%s/status", url.PathEscape(deviceID))
	data, err := c.call(ctx, "getDeviceStatus", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	st, ok := ParseStatus(data)
	if !ok {
		return &Status{}, nil
	}
	return st, nil
}

// GetSwitchState returns the device's switch state.
// Devices without a readable switch attribute report SwitchUnknown.
func (c *Client) GetSwitchState(ctx context.Context, deviceID string) (SwitchState, error) {
	st, err := c.GetStatus(ctx, deviceID)
	if err != nil {
		return SwitchUnknown, err
	}
	return st.Switch(), nil
}

// SendCommand sends a single command to the device's main component
func (c *Client) SendCommand(ctx context.Context, deviceID, capability, command string, args ...any) error {
	if args == nil {
		args = []any{}
	}
	payload := CommandRequest{
		Commands: []Command{{
			Component:  MainComponent,
			Capability: capability,
			Command:    command,
			Arguments:  args,
		}},
	}

	path := fmt.Sprintf("devices/%s/commands", url.PathEscape(deviceID))
	_, err := c.call(ctx, "sendCommand", http.MethodPost, path, payload)
	return err
}

// ExecuteScene runs a scene
func (c *Client) ExecuteScene(ctx context.Context, sceneID string) error {
	path := fmt.Sprintf("scenes/%s/execute", url.PathEscape(sceneID))
	_, err := c.call(ctx, "executeScene", http.MethodPost, path, nil)
	return err
}

// Connector hands out token-bound clients sharing one http.Client.
type Connector struct {
	baseURL    string
	httpClient *http.Client
}

// NewConnector creates a connector. A zero timeout leaves requests bounded
// only by their context.
func NewConnector(baseURL string, timeout time.Duration) *Connector {
	return &Connector{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Connect returns a client for the token
func (c *Connector) Connect(token string) *Client {
	return NewClient(c.baseURL, token, c.httpClient)
}

// Close closes idle connections
func (c *Connector) Close() {
	c.httpClient.CloseIdleConnections()
}
