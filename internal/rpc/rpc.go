// Package rpc implements the grill's typed JSON-RPC endpoints over
// internal/transport and internal/auth, plus the pure command
// encoders. A rejected call is retried once, immediately, with the
// alternate token; when that fails too the error is returned to the
// caller without being logged here.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"pitboss/internal/auth"
	"pitboss/internal/domain"
	"pitboss/internal/transport"
)

// ErrAuthenticationFailed is returned when both the primary and
// alternate tokens are rejected by the grill.
var ErrAuthenticationFailed = errors.New("rpc: authentication failed")

// Client issues the grill's RPC calls against one or more IPs,
// deriving auth tokens from a shared auth.Cache.
type Client struct {
	http *transport.Client
	auth *auth.Cache
}

// New returns a Client backed by httpClient and authCache.
func New(httpClient *transport.Client, authCache *auth.Cache) *Client {
	return &Client{http: httpClient, auth: authCache}
}

type authPayload struct {
	Time int    `json:"time"`
	Psw  string `json:"psw"`
}

// call performs an authenticated RPC, retrying once with the alternate
// token if the primary is rejected (any non-200 status).
func (c *Client) call(ctx context.Context, ip, endpoint string, extra map[string]any, out any) error {
	toks, err := c.auth.Tokens(ctx, ip)
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", endpoint, err)
	}

	try := func(psw string) (*transport.Response, error) {
		payload := map[string]any{"time": toks.TimeInt, "psw": psw}
		for k, v := range extra {
			payload[k] = v
		}
		return c.http.PostJSON(ctx, url(ip, endpoint), payload, out)
	}

	resp, err := try(toks.PswHex)
	if err == nil && resp.Status == 200 {
		return nil
	}

	resp, err = try(toks.PswHexPlus1)
	if err == nil && resp.Status == 200 {
		return nil
	}
	if resp != nil && resp.Status != 200 {
		// A rejected token may come back with a body that is not JSON;
		// the status, not the decode error, decides the outcome.
		return fmt.Errorf("rpc: %s: %w (status %d)", endpoint, ErrAuthenticationFailed, resp.Status)
	}
	if err != nil {
		return fmt.Errorf("rpc: %s: %w", endpoint, err)
	}
	return fmt.Errorf("rpc: %s: %w (status %d)", endpoint, ErrAuthenticationFailed, resp.Status)
}

func url(ip, endpoint string) string {
	return fmt.Sprintf("http://%s/rpc/%s", ip, endpoint)
}

// StateResponse is the decoded PB.GetState payload.
type StateResponse struct {
	SC11 string `json:"sc_11"`
	SC12 string `json:"sc_12"`
}

// GetState fetches the grill's current status blobs.
func (c *Client) GetState(ctx context.Context, ip string) (StateResponse, error) {
	var out StateResponse
	if err := c.call(ctx, ip, "PB.GetState", nil, &out); err != nil {
		return StateResponse{}, err
	}
	return out, nil
}

// SendMCUCommand sends a raw hex command string to the grill.
func (c *Client) SendMCUCommand(ctx context.Context, ip, commandHex string) error {
	return c.call(ctx, ip, "PB.SendMCUCommand", map[string]any{"command": commandHex}, nil)
}

type firmwareResponse struct {
	FirmwareVersion string `json:"firmwareVersion"`
}

// GetFirmwareVersion is unauthenticated.
func (c *Client) GetFirmwareVersion(ctx context.Context, ip string) (string, error) {
	var out firmwareResponse
	if _, err := c.http.PostJSON(ctx, url(ip, "PB.GetFirmwareVersion"), map[string]any{}, &out); err != nil {
		return "", err
	}
	return out.FirmwareVersion, nil
}

// SysInfo is the response shape of Sys.GetInfo, used both for
// firmware/hardware inspection and as the discovery probe.
type SysInfo struct {
	ID  string `json:"id"`
	App string `json:"app"`
	FW  string `json:"fw"`
	HW  string `json:"hw"`
}

// GetSysInfo is unauthenticated.
func (c *Client) GetSysInfo(ctx context.Context, ip string) (SysInfo, error) {
	var out SysInfo
	if _, err := c.http.PostJSON(ctx, url(ip, "Sys.GetInfo"), map[string]any{}, &out); err != nil {
		return SysInfo{}, err
	}
	return out, nil
}

// --- command encoders (pure) ---

// ErrInvalidArgument is returned by encoders given an out-of-range or
// malformed argument.
var ErrInvalidArgument = errors.New("rpc: invalid argument")

// SetTemperature encodes the set_temperature command, validating t is
// within [min, max] first. The encoder itself is unit-agnostic;
// callers pass the already-unit-correct bound via min/max.
func SetTemperature(t, min, max int) (string, error) {
	if t < min || t > max {
		return "", fmt.Errorf("%w: temperature %d out of range [%d,%d]", ErrInvalidArgument, t, min, max)
	}
	hh := t / 100 % 10
	tt := t / 10 % 10
	uu := t % 10
	return fmt.Sprintf("FE0501%02X%02X%02XFF", hh, tt, uu), nil
}

// EncodeSetTemperature validates raw against unit's range, snaps it to
// the nearest approved setpoint, and encodes the result: 237°F is 12
// from 225 and 13 from 250, so it snaps to 225°F and encodes as
// FE0501020205FF; 600°F is out of range and returns ErrInvalidArgument.
func EncodeSetTemperature(raw int, unit domain.Unit) (string, error) {
	min, max := domain.MinTempF, domain.MaxTempF
	if unit == domain.Celsius {
		min, max = domain.MinTempC, domain.MaxTempC
	}
	if raw < min || raw > max {
		return "", fmt.Errorf("%w: temperature %d out of range [%d,%d]", ErrInvalidArgument, raw, min, max)
	}
	return SetTemperature(SnapToApproved(raw, unit), min, max)
}

func SetLight(on bool) string {
	if on {
		return "FE0201FF"
	}
	return "FE0200FF"
}

func SetPrime(on bool) string {
	if on {
		return "FE0801FF"
	}
	return "FE0800FF"
}

// SetPower encodes the power toggle command. Note the off byte is 02,
// not 00.
func SetPower(on bool) string {
	if on {
		return "FE0101FF"
	}
	return "FE0102FF"
}

func SetUnit(celsius bool) string {
	if celsius {
		return "FE0902FF"
	}
	return "FE0901FF"
}

// IsFirmwareValid parses v and MinimumFirmwareVersion as dotted
// numerics (padded to 3 components with zeros) and compares them
// lexicographically component-by-component.
func IsFirmwareValid(v string) bool {
	return IsFirmwareValidMin(v, domain.MinimumFirmwareVersion)
}

// IsFirmwareValidMin is IsFirmwareValid against an explicit floor.
func IsFirmwareValidMin(v, min string) bool {
	vc, ok1 := parseVersion(v)
	mc, ok2 := parseVersion(min)
	if !ok1 || !ok2 {
		return false
	}
	for i := 0; i < 3; i++ {
		if vc[i] != mc[i] {
			return vc[i] > mc[i]
		}
	}
	return true
}

func parseVersion(v string) ([3]int, bool) {
	var out [3]int
	if v == "" {
		return out, false
	}
	parts := splitDot(v)
	if len(parts) == 0 || len(parts) > 3 {
		return out, false
	}
	for i, p := range parts {
		n, ok := atoiStrict(p)
		if !ok {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

func splitDot(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func atoiStrict(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// SnapToApproved returns the approved setpoint closest to x for unit,
// ties broken toward the lower value.
func SnapToApproved(x int, unit domain.Unit) int {
	list := domain.ApprovedSetpointsF
	if unit == domain.Celsius {
		list = domain.ApprovedSetpointsC
	}
	best := list[0]
	bestDiff := abs(x - best)
	for _, s := range list[1:] {
		d := abs(x - s)
		if d < bestDiff {
			best, bestDiff = s, d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
