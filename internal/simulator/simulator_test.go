package simulator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/wifiprov/internal/device"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// manualClock only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestDevice(t *testing.T, mutate func(*Config)) (*Device, *manualClock) {
	t.Helper()
	clock := newManualClock()
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg), clock
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScanLifecycle(t *testing.T) {
	t.Parallel()
	d, clock := newTestDevice(t, nil)
	h := d.Handler()

	rec := do(t, h, http.MethodGet, device.PathScanResults, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "results before any scan")

	rec = do(t, h, http.MethodGet, device.PathScan, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodGet, device.PathScanResults, "")
	assert.Equal(t, http.StatusAccepted, rec.Code, "still scanning")

	clock.Advance(DefaultScanDuration)
	rec = do(t, h, http.MethodGet, device.PathScanResults, "")
	require.Equal(t, http.StatusOK, rec.Code)

	networks, err := device.ParseNetworks(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, networks, 4)
	assert.Equal(t, "Home", networks[0].SSID)
	assert.Equal(t, "Cafe", networks[3].SSID, "scan order is kept")

	assert.Equal(t, 3, d.Requests(device.PathScanResults))
}

func TestScanReusesRunningScan(t *testing.T) {
	t.Parallel()
	d, clock := newTestDevice(t, nil)
	h := d.Handler()

	do(t, h, http.MethodGet, device.PathScan, "")
	clock.Advance(DefaultScanDuration - time.Second)
	do(t, h, http.MethodGet, device.PathScan, "")
	clock.Advance(time.Second)

	rec := do(t, h, http.MethodGet, device.PathScanResults, "")
	assert.Equal(t, http.StatusOK, rec.Code, "a second start does not restart the timer")
}

func TestScanEmptyNeighbourhood(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, func(c *Config) {
		c.Networks = nil
		c.ScanDuration = 0
	})
	h := d.Handler()

	do(t, h, http.MethodGet, device.PathScan, "")
	rec := do(t, h, http.MethodGet, device.PathScanResults, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestScanTrailingGarbage(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, func(c *Config) {
		c.TrailingGarbage = true
		c.ScanDuration = 0
	})
	h := d.Handler()

	do(t, h, http.MethodGet, device.PathScan, "")
	rec := do(t, h, http.MethodGet, device.PathScanResults, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasSuffix(rec.Body.String(), Garbage))

	networks, err := device.ParseNetworks(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Len(t, networks, 4)
}

func TestFailScan(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, nil)
	d.SetFailScan(true)

	rec := do(t, d.Handler(), http.MethodGet, device.PathScan, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestConnectJoinsAfterReboot(t *testing.T) {
	t.Parallel()
	d, clock := newTestDevice(t, nil)
	h := d.Handler()

	rec := do(t, h, http.MethodPost, device.PathConnect, `{"ssid":"Home","password":"hunter22"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp, err := device.ParseConnectResponse(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, resp.Accepted())

	rec = do(t, h, http.MethodGet, device.PathStatus, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "rebooting")

	clock.Advance(DefaultRebootWindow)
	rec = do(t, h, http.MethodGet, device.PathStatus, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st, err := device.ParseConnectionStatus(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, device.LinkConnecting, st.Status)
	assert.False(t, st.Joined())

	clock.Advance(DefaultJoinDelay - DefaultRebootWindow)
	rec = do(t, h, http.MethodGet, device.PathStatus, "")
	st, err = device.ParseConnectionStatus(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, st.Joined())
	assert.Equal(t, DefaultStationIP, st.IP)
	assert.Equal(t, "Home", st.SSID)
}

func TestConnectWrongPasswordFailsToJoin(t *testing.T) {
	t.Parallel()
	d, clock := newTestDevice(t, nil)
	h := d.Handler()

	rec := do(t, h, http.MethodPost, device.PathConnect, `{"ssid":"Home","password":"nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	clock.Advance(DefaultJoinDelay)
	link := d.Link()
	assert.Equal(t, device.ModeAP, link.Mode)
	assert.Equal(t, device.LinkDisconnected, link.Status)
}

func TestConnectWrongPasswordRejected(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, func(c *Config) { c.RejectWrongPassword = true })

	rec := do(t, d.Handler(), http.MethodPost, device.PathConnect, `{"ssid":"Home","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "AUTH_FAILED", body["error_code"])
	assert.Equal(t, false, body["success"])
}

func TestConnectOpenNetworkAcceptsAnyPassword(t *testing.T) {
	t.Parallel()
	d, clock := newTestDevice(t, func(c *Config) { c.RejectWrongPassword = true })

	rec := do(t, d.Handler(), http.MethodPost, device.PathConnect, `{"ssid":"Cafe","password":""}`)
	require.Equal(t, http.StatusOK, rec.Code)

	clock.Advance(DefaultJoinDelay)
	assert.True(t, d.Link().Joined())
}

func TestConnectBadRequests(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, nil)
	h := d.Handler()

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed", `{"ssid":`, "BAD_REQUEST"},
		{"empty ssid", `{"ssid":"","password":"x"}`, "INVALID_SSID"},
	}
	for _, tt := range tests {
		rec := do(t, h, http.MethodPost, device.PathConnect, tt.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
		assert.Contains(t, rec.Body.String(), tt.code, tt.name)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	d, clock := newTestDevice(t, nil)
	h := d.Handler()

	do(t, h, http.MethodPost, device.PathConnect, `{"ssid":"Home","password":"hunter22"}`)
	clock.Advance(DefaultJoinDelay)
	require.True(t, d.Link().Joined())

	rec := do(t, h, http.MethodPost, device.PathReset, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reboot")
	assert.Equal(t, device.ModeAP, d.Link().Mode)
}

func TestOffline(t *testing.T) {
	t.Parallel()
	d, _ := newTestDevice(t, nil)
	h := d.Handler()

	d.SetOffline(true)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, device.PathStatus, "").Code)
	assert.Equal(t, 1, d.Requests(device.PathStatus))

	d.SetOffline(false)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, device.PathStatus, "").Code)
}
