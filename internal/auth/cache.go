// Package auth maintains the per-IP authentication token cache that
// backs every RPC call: the decrypted device password, the current
// time bucket, and the resulting primary/alternate auth tokens. A
// cached entry is reused until it goes stale, the same
// connect-and-cache-until-stale shape used to avoid reconnecting on
// every call to a slow field device, adapted here from a TCP handle to
// an HTTP-derived credential pair.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pitboss/internal/codec"
	"pitboss/internal/transport"
	"pitboss/pkg/logger"
)

// DefaultTimeout is how long a cached credential stays valid before a
// fresh password/time-bucket fetch is required.
const DefaultTimeout = 4 * time.Second

// Tokens is what callers need to authenticate an RPC call.
type Tokens struct {
	TimeInt     int
	PswHex      string
	PswHexPlus1 string
}

type entry struct {
	password      string
	lastUptimeInt int
	pswHex        string
	pswHexPlus1   string
	cachedAt      time.Time
}

// Cache derives and caches Tokens per grill IP.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	client  *transport.Client
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// New returns a Cache that issues its own requests through client.
func New(client *transport.Client) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		client:  client,
		timeout: DefaultTimeout,
		log:     logger.New("AuthCache"),
		now:     time.Now,
	}
}

type extConfigResp struct {
	Psw string `json:"psw"`
}

type getTimeResp struct {
	Time int `json:"time"`
}

// Tokens returns the current auth tokens for ip: a cheap uptime-only
// refresh when the cache is fresh and the clock hasn't gone backward,
// else a full password+uptime refresh.
func (c *Cache) Tokens(ctx context.Context, ip string) (Tokens, error) {
	c.mu.Lock()
	e, ok := c.entries[ip]
	c.mu.Unlock()

	now := c.now()

	if ok {
		age := now.Sub(e.cachedAt)
		if age >= 0 && age < c.timeout {
			if toks, err := c.cheapRefresh(ctx, ip, e, now); err == nil {
				return toks, nil
			} else {
				c.log.Debug("cheap refresh failed for %s, falling back to full refresh: %v", ip, err)
			}
		} else if age < 0 {
			c.log.Debug("clock moved backward for %s, invalidating cache", ip)
		}
	}

	return c.fullRefresh(ctx, ip, now)
}

// cheapRefresh fetches only PB.GetTime and, if the new uptime is
// fewer than 2 time-buckets from the cached one, returns the cached tokens
// unchanged; otherwise it regenerates tokens from the cached password.
func (c *Cache) cheapRefresh(ctx context.Context, ip string, e *entry, now time.Time) (Tokens, error) {
	uptime, err := c.fetchUptime(ctx, ip)
	if err != nil {
		return Tokens{}, err
	}
	timeInt := codec.GetCodecTime(uptime)

	c.mu.Lock()
	defer c.mu.Unlock()

	if abs(timeInt-e.lastUptimeInt) < 2 {
		return Tokens{TimeInt: e.lastUptimeInt, PswHex: e.pswHex, PswHexPlus1: e.pswHexPlus1}, nil
	}

	toks := deriveTokens(e.password, timeInt)
	e.lastUptimeInt = timeInt
	e.pswHex = toks.PswHex
	e.pswHexPlus1 = toks.PswHexPlus1
	e.cachedAt = now
	return toks, nil
}

// fullRefresh re-fetches /extconfig.json, decrypts the password,
// fetches uptime, and regenerates both tokens from scratch.
func (c *Cache) fullRefresh(ctx context.Context, ip string, now time.Time) (Tokens, error) {
	password, err := c.fetchPassword(ctx, ip)
	if err != nil {
		return Tokens{}, fmt.Errorf("auth: fetch password: %w", err)
	}
	uptime, err := c.fetchUptime(ctx, ip)
	if err != nil {
		return Tokens{}, fmt.Errorf("auth: fetch uptime: %w", err)
	}
	timeInt := codec.GetCodecTime(uptime)
	toks := deriveTokens(password, timeInt)

	c.mu.Lock()
	c.entries[ip] = &entry{
		password:      password,
		lastUptimeInt: timeInt,
		pswHex:        toks.PswHex,
		pswHexPlus1:   toks.PswHexPlus1,
		cachedAt:      now,
	}
	c.mu.Unlock()

	return toks, nil
}

// Invalidate drops the cached entry for ip, forcing the next Tokens
// call to do a full refresh. The rediscovery path does not call it: an
// entry cached for an old IP stays until its own TTL runs out.
func (c *Cache) Invalidate(ip string) {
	c.mu.Lock()
	delete(c.entries, ip)
	c.mu.Unlock()
}

func (c *Cache) fetchPassword(ctx context.Context, ip string) (string, error) {
	var resp extConfigResp
	url := fmt.Sprintf("http://%s/extconfig.json", ip)
	if _, err := c.client.GetJSON(ctx, url, &resp); err != nil {
		return "", err
	}
	encrypted := codec.DecodeHex(resp.Psw)
	plain, err := codec.Codec(encrypted, codec.FileDecodeKey, 0, false)
	if err != nil {
		return "", fmt.Errorf("decrypt password: %w", err)
	}
	return string(plain), nil
}

func (c *Cache) fetchUptime(ctx context.Context, ip string) (int, error) {
	var resp getTimeResp
	url := fmt.Sprintf("http://%s/rpc/PB.GetTime", ip)
	if _, err := c.client.PostJSON(ctx, url, map[string]any{}, &resp); err != nil {
		return 0, err
	}
	return resp.Time, nil
}

// deriveTokens computes the primary and alternate (t, t+1) auth tokens
// for password at time bucket t.
func deriveTokens(password string, timeInt int) Tokens {
	psw := []byte(password)
	primary, _ := codec.Codec(psw, codec.GetCodecKey(codec.RPCAuthKeyBase, timeInt), 0, true)
	alt, _ := codec.Codec(psw, codec.GetCodecKey(codec.RPCAuthKeyBase, timeInt+1), 0, true)
	return Tokens{
		TimeInt:     timeInt,
		PswHex:      codec.EncodeHex(primary),
		PswHexPlus1: codec.EncodeHex(alt),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
