package simulator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/logging"
)

// Defaults model a device that scans for a few seconds and drops off the
// air briefly while its radio switches to station mode.
const (
	DefaultScanDuration = 3 * time.Second
	DefaultRebootWindow = 4 * time.Second
	DefaultJoinDelay    = 6 * time.Second
	DefaultStationIP    = "192.168.1.42"
)

// Garbage is appended to scan results when Config.TrailingGarbage is set.
// Real firmware sometimes flushes stale buffer bytes after the JSON body.
const Garbage = "\x00\x00<html><body>ok</body></html>"

// Config describes the simulated device.
type Config struct {
	// Networks are reported by every completed scan, in this order
	Networks []device.NetworkRecord

	// Passwords maps SSIDs to the password the access point expects.
	// Networks not listed accept any password.
	Passwords map[string]string

	// ScanDuration is how long results stay pending after a scan starts
	ScanDuration time.Duration

	// RebootWindow is how long the device answers 503 after accepting credentials
	RebootWindow time.Duration

	// JoinDelay is how long after submission the station link comes up
	JoinDelay time.Duration

	// RejectWrongPassword answers the connect request with 401 AUTH_FAILED
	// instead of accepting it and failing to join later
	RejectWrongPassword bool

	// TrailingGarbage appends Garbage to scan result bodies
	TrailingGarbage bool

	// StationIP is reported once joined
	StationIP string

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// DefaultNetworks is a small neighbourhood used by the CLI and demos.
func DefaultNetworks() []device.NetworkRecord {
	ch1, ch6, ch11 := 1, 6, 11
	return []device.NetworkRecord{
		{SSID: "Home", RSSI: -42, Channel: &ch6, Secure: true},
		{SSID: "Home-Guest", RSSI: -58, Channel: &ch6, Secure: false},
		{SSID: "Neighbour", RSSI: -81, Channel: &ch11, Secure: true},
		{SSID: "Cafe", RSSI: -71, Channel: &ch1, Secure: false},
	}
}

// DefaultConfig returns a config with DefaultNetworks and password "hunter22" for Home.
func DefaultConfig() Config {
	return Config{
		Networks:     DefaultNetworks(),
		Passwords:    map[string]string{"Home": "hunter22"},
		ScanDuration: DefaultScanDuration,
		RebootWindow: DefaultRebootWindow,
		JoinDelay:    DefaultJoinDelay,
		StationIP:    DefaultStationIP,
	}
}

// Device is an in-memory device speaking the provisioning API.
type Device struct {
	cfg Config

	mu          sync.Mutex
	scanStarted time.Time
	scanning    bool
	pending     *joinAttempt
	link        device.ConnectionStatus
	offline     bool
	failScan    bool
	requests    map[string]int
}

type joinAttempt struct {
	ssid        string
	ok          bool
	submittedAt time.Time
}

// New creates a simulated device in access point mode.
func New(cfg Config) *Device {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StationIP == "" {
		cfg.StationIP = DefaultStationIP
	}
	return &Device{
		cfg:      cfg,
		link:     device.ConnectionStatus{Mode: device.ModeAP, Status: device.LinkDisconnected},
		requests: make(map[string]int),
	}
}

// Handler returns the device's HTTP API.
func (d *Device) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), d.record)

	api := r.Group("/api/wifi")
	{
		api.GET("/scan", d.startScan)
		api.GET("/results", d.scanResults)
		api.POST("/connect", d.connect)
		api.GET("/status", d.status)
		api.POST("/reset", d.reset)
	}
	return r
}

// SetOffline makes every request answer 503, as if the device dropped off the air.
func (d *Device) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

// SetFailScan makes scan requests fail with 500.
func (d *Device) SetFailScan(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failScan = fail
}

// SetNetworks replaces the networks reported by the next completed scan.
func (d *Device) SetNetworks(networks []device.NetworkRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.Networks = networks
}

// Requests returns how many requests path has served.
func (d *Device) Requests(path string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[path]
}

// Link returns the current station link.
func (d *Device) Link() device.ConnectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advanceLocked(d.cfg.Now())
	return d.link
}

func (d *Device) record(c *gin.Context) {
	d.mu.Lock()
	d.requests[c.Request.URL.Path]++
	offline := d.offline
	d.mu.Unlock()

	if offline {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "offline"})
		logging.LogHTTPRequest(c.ClientIP(), c.Request.Method, c.Request.URL.Path, http.StatusServiceUnavailable)
		return
	}
	c.Next()
	logging.LogHTTPRequest(c.ClientIP(), c.Request.Method, c.Request.URL.Path, c.Writer.Status())
}

func (d *Device) startScan(c *gin.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failScan {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed to start"})
		return
	}
	if d.rebootingLocked(d.cfg.Now()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rebooting"})
		return
	}

	// A scan already running is reused, as the firmware does
	if !d.scanning {
		d.scanning = true
		d.scanStarted = d.cfg.Now()
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "scanning"})
}

func (d *Device) scanResults(c *gin.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.scanning {
		c.JSON(http.StatusConflict, gin.H{"error": "no scan in progress"})
		return
	}
	if d.cfg.Now().Sub(d.scanStarted) < d.cfg.ScanDuration {
		c.JSON(http.StatusAccepted, gin.H{"status": "scanning"})
		return
	}

	networks := d.cfg.Networks
	if networks == nil {
		networks = []device.NetworkRecord{}
	}
	d.scanning = false

	if d.cfg.TrailingGarbage {
		body, err := json.Marshal(networks)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "application/json", append(body, Garbage...))
		return
	}
	c.JSON(http.StatusOK, networks)
}

type connectRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func (d *Device) connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error_code": "BAD_REQUEST", "message": err.Error()})
		return
	}
	if req.SSID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error_code": "INVALID_SSID", "message": "ssid is required"})
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	want, known := d.cfg.Passwords[req.SSID]
	ok := !known || want == req.Password
	if !ok && d.cfg.RejectWrongPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error_code": "AUTH_FAILED", "message": "wrong password"})
		return
	}

	now := d.cfg.Now()
	d.pending = &joinAttempt{ssid: req.SSID, ok: ok, submittedAt: now}
	d.link = device.ConnectionStatus{Mode: device.ModeAP, Status: device.LinkConnecting, SSID: req.SSID}
	d.scanning = false

	logging.Info("Simulated device accepted credentials",
		zap.String("ssid", req.SSID),
		zap.Bool("will_join", ok),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "connecting"})
}

func (d *Device) status(c *gin.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.cfg.Now()
	if d.rebootingLocked(now) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "rebooting"})
		return
	}
	d.advanceLocked(now)
	c.JSON(http.StatusOK, d.link)
}

func (d *Device) reset(c *gin.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = nil
	d.link = device.ConnectionStatus{Mode: device.ModeAP, Status: device.LinkDisconnected}
	c.String(http.StatusOK, "WiFi credentials reset. Please reboot the device.")
}

func (d *Device) rebootingLocked(now time.Time) bool {
	return d.pending != nil && now.Sub(d.pending.submittedAt) < d.cfg.RebootWindow
}

// advanceLocked resolves a pending join once JoinDelay has passed.
func (d *Device) advanceLocked(now time.Time) {
	p := d.pending
	if p == nil || now.Sub(p.submittedAt) < d.cfg.JoinDelay {
		return
	}
	d.pending = nil
	if p.ok {
		d.link = device.ConnectionStatus{Mode: device.ModeSTA, Status: device.LinkConnected, IP: d.cfg.StationIP, SSID: p.ssid}
		return
	}
	d.link = device.ConnectionStatus{Mode: device.ModeAP, Status: device.LinkDisconnected}
}
