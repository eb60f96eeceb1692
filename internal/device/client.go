package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/version"
	"go.uber.org/zap"
)

const (
	// DefaultHost is the device address while it runs its own access point
	DefaultHost = "192.168.4.1"

	// DefaultPort is the device's HTTP port
	DefaultPort = 80

	// DefaultRequestTimeout bounds a single request (submit, status, scan start)
	DefaultRequestTimeout = 8 * time.Second

	// DefaultScanRequestTimeout bounds a single scan-results request
	DefaultScanRequestTimeout = 5 * time.Second

	// maxBodySize caps how much of a response body is read
	maxBodySize = 64 << 10
)

// Device API paths
const (
	PathScan        = "/api/wifi/scan"
	PathScanResults = "/api/wifi/results"
	PathConnect     = "/api/wifi/connect"
	PathStatus      = "/api/wifi/status"
	PathReset       = "/api/wifi/reset"
)

// Client represents an HTTP client for the device's Wi-Fi provisioning API.
//
// Each method performs exactly one request. Retrying and pacing are the
// caller's business; the client only classifies what happened.
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.4.1:80")
	BaseURL string

	// HTTPClient is the underlying HTTP client. Its own Timeout is left unset;
	// per-call deadlines come from RequestTimeout and ScanRequestTimeout.
	HTTPClient *http.Client

	// RequestTimeout bounds scan start, credential submission, status and reset calls
	RequestTimeout time.Duration

	// ScanRequestTimeout bounds each scan-results request
	ScanRequestTimeout time.Duration

	addr string
}

// NewClient creates a new device client
// host: Device address (e.g., "192.168.4.1")
// port: Device HTTP port (typically 80)
func NewClient(host string, port int) *Client {
	return NewClientWithURL(fmt.Sprintf("http://%s:%d", host, port))
}

// NewClientWithURL creates a new client with a full base URL
// baseURL: Full base URL (e.g., "http://192.168.4.1:80")
func NewClientWithURL(baseURL string) *Client {
	addr := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		addr = u.Host
	}

	return &Client{
		BaseURL:            baseURL,
		HTTPClient:         &http.Client{},
		RequestTimeout:     DefaultRequestTimeout,
		ScanRequestTimeout: DefaultScanRequestTimeout,
		addr:               addr,
	}
}

// SetTimeouts sets the per-request timeouts. Zero values leave the current setting.
func (c *Client) SetTimeouts(request, scanResults time.Duration) {
	if request > 0 {
		c.RequestTimeout = request
	}
	if scanResults > 0 {
		c.ScanRequestTimeout = scanResults
	}
}

// Addr returns the host:port the client talks to
func (c *Client) Addr() string {
	return c.addr
}

// Ping performs a simple health check on the device
// Returns nil if the device answers the status endpoint
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.do(ctx, http.MethodGet, PathStatus, nil, c.RequestTimeout)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return NewHTTPError(status, fmt.Sprintf("unexpected status code: %s", statusText(status)))
	}
	return nil
}

// StartScan asks the device to begin an access point scan.
// The device answers 202 Accepted; anything else is a rejection.
func (c *Client) StartScan(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, PathScan, nil, c.RequestTimeout)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return NewRejectedError(status, "", fmt.Sprintf("scan not accepted: %s %s", statusText(status), truncate(body)))
	}
	return nil
}

// ScanResults fetches the outcome of the current scan.
//
//	200 → Ready(list), possibly empty
//	202 → Pending
//	any other status or a malformed body → Failed
func (c *Client) ScanResults(ctx context.Context) Reply[[]NetworkRecord] {
	status, body, err := c.do(ctx, http.MethodGet, PathScanResults, nil, c.ScanRequestTimeout)
	if err != nil {
		return Failed[[]NetworkRecord](err)
	}

	switch status {
	case http.StatusOK:
		networks, err := ParseNetworks(body)
		if err != nil {
			logging.LogRawBytes("Malformed scan results", body)
			return Failed[[]NetworkRecord](NewParseError("failed to parse scan results", err))
		}
		return Ready(networks)
	case http.StatusAccepted:
		return Pending[[]NetworkRecord]()
	default:
		return Failed[[]NetworkRecord](NewHTTPError(status, fmt.Sprintf("unexpected scan results status: %s", statusText(status))))
	}
}

// SubmitCredentials posts the credentials to the device once.
//
// Credentials are validated before any request is made. A non-2xx status or a
// body with "success": false is returned as a rejection carrying the device's
// error code.
func (c *Client) SubmitCredentials(ctx context.Context, creds Credentials) (*ConnectResponse, error) {
	if err := ValidateCredentials(creds); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return nil, NewParseError("failed to encode credentials", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, PathConnect, payload, c.RequestTimeout)
	if err != nil {
		return nil, err
	}

	resp, parseErr := ParseConnectResponse(body)

	if status < 200 || status > 299 {
		code, msg := "", fmt.Sprintf("credentials rejected: %s", statusText(status))
		if parseErr == nil && resp != nil {
			code = resp.ErrorCode
			if resp.Message != "" {
				msg = resp.Message
			}
		}
		return nil, NewRejectedError(status, code, msg)
	}

	if parseErr != nil {
		return nil, NewParseError("failed to parse connect response", parseErr)
	}
	if !resp.Accepted() {
		msg := resp.Message
		if msg == "" {
			msg = "device reported connect failure"
		}
		return resp, NewRejectedError(status, resp.ErrorCode, msg)
	}

	return resp, nil
}

// Status reads the device's current connection status.
//
//	200 with a valid body → Ready(status)
//	anything else → Failed
func (c *Client) Status(ctx context.Context) Reply[ConnectionStatus] {
	status, body, err := c.do(ctx, http.MethodGet, PathStatus, nil, c.RequestTimeout)
	if err != nil {
		return Failed[ConnectionStatus](err)
	}
	if status != http.StatusOK {
		return Failed[ConnectionStatus](NewHTTPError(status, fmt.Sprintf("unexpected status code: %s", statusText(status))))
	}

	parsed, err := ParseConnectionStatus(body)
	if err != nil {
		logging.LogRawBytes("Malformed connection status", body)
		return Failed[ConnectionStatus](NewParseError("failed to parse connection status", err))
	}
	return Ready(*parsed)
}

// ResetWiFi clears the stored station credentials on the device.
// The device keeps running its access point and must be rebooted to apply.
func (c *Client) ResetWiFi(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodPost, PathReset, nil, c.RequestTimeout)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return NewHTTPError(status, fmt.Sprintf("reset failed with status %s: %s", statusText(status), truncate(body)))
	}
	return nil
}

// do performs one request bounded by timeout and returns status and body.
// Transport failures are classified into DeviceErrors.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, timeout time.Duration) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return 0, nil, NewNetworkError(fmt.Sprintf("failed to create %s request", method), err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("User-Agent", version.UserAgent())

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		devErr := ClassifyNetworkError(err, c.addr)
		devErr.Message = fmt.Sprintf("%s %s failed: %s", method, path, devErr.Message)
		logging.Debug("Device request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return 0, nil, devErr
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		devErr := ClassifyNetworkError(err, c.addr)
		devErr.Message = "failed to read response body"
		return 0, nil, devErr
	}

	logging.LogHTTPExchange(c.addr, method, path, resp.StatusCode, len(data), time.Since(start))

	return resp.StatusCode, data, nil
}

func truncate(body []byte) string {
	const limit = 120
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
