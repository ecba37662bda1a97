// Package plug talks to the smart plug broker that switches the household
// outlet on and off.
package plug

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/metrics"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// Client issues state queries and changes for a single plug. It never retries
// and does not suppress duplicate commands.
type Client struct {
	client   *http.Client
	baseURL  string
	deviceID string
}

// NewClient returns a Client for the plug deviceID behind the broker at
// baseURL.
func NewClient(client *http.Client, baseURL, deviceID string) *Client {
	return &Client{
		client:   client,
		baseURL:  baseURL,
		deviceID: deviceID,
	}
}

// DeviceID returns the plug this client controls.
func (c *Client) DeviceID() string {
	return c.deviceID
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}
	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, method, u.String(), nil)
}

// do performs req and decodes the body into dest. A decodable body is
// returned with its status even when the status is not 2xx.
func (c *Client) do(req *http.Request, name string, dest interface{}) ([]byte, int, error) {
	start := time.Now()
	raw, status, err := c.roundTrip(req, name, dest)
	metrics.ObserveUpstream(name, start, err)
	return raw, status, err
}

func (c *Client) roundTrip(req *http.Request, name string, dest interface{}) ([]byte, int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &types.UpstreamError{Endpoint: name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode plug broker response",
			slog.String("endpoint", name), slog.Int("status", resp.StatusCode), slog.String("body", string(raw)))
		return raw, resp.StatusCode, &types.UpstreamError{Endpoint: name, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return raw, resp.StatusCode, nil
}

// QueryState asks the broker for the current state of the plug.
func (c *Client) QueryState(ctx context.Context) (types.PlugQueryResult, error) {
	params := url.Values{}
	params.Set("id", c.deviceID)
	req, err := c.newRequest(ctx, http.MethodGet, "api/query", params)
	if err != nil {
		return types.PlugQueryResult{}, err
	}

	var res types.PlugQueryResult
	res.Raw, res.StatusCode, err = c.do(req, "query", &res.Payload)
	if err != nil {
		return res, fmt.Errorf("failed to query plug %s: %w", c.deviceID, err)
	}
	return res, nil
}

// SetState asks the broker to switch the plug on or off.
func (c *Client) SetState(ctx context.Context, on bool) (types.PlugSetResult, error) {
	params := url.Values{}
	params.Set("state", types.OnOff(on))
	params.Set("id", c.deviceID)
	req, err := c.newRequest(ctx, http.MethodPost, "api/setstate", params)
	if err != nil {
		return types.PlugSetResult{}, err
	}

	var res types.PlugSetResult
	res.Raw, res.StatusCode, err = c.do(req, "setstate", &res.Payload)
	if err != nil {
		return res, fmt.Errorf("failed to set plug %s %s: %w", c.deviceID, types.OnOff(on), err)
	}
	log.Ctx(ctx).DebugContext(ctx, "plug state change sent",
		slog.String("state", types.OnOff(on)), slog.Bool("present", res.Payload.Present), slog.Bool("success", res.Payload.Success))
	return res, nil
}

type listResponse struct {
	Plugs []types.PlugInfo `json:"plugs"`
}

// List returns every plug currently connected to the broker.
func (c *Client) List(ctx context.Context) ([]types.PlugInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "api/list", nil)
	if err != nil {
		return nil, err
	}

	var res listResponse
	_, status, err := c.do(req, "list", &res)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugs: %w", err)
	}
	if status < 200 || status > 299 {
		return nil, &types.UpstreamError{Endpoint: "list", Status: status}
	}
	return res.Plugs, nil
}
