package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pitboss/internal/codec"
	"pitboss/internal/transport"
)

func newTestServer(t *testing.T, uptime *int) *httptest.Server {
	t.Helper()
	encPsw, err := codec.Codec([]byte("secret"), codec.FileDecodeKey, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/extconfig.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"psw": codec.EncodeHex(encPsw)})
	})
	mux.HandleFunc("/rpc/PB.GetTime", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"time": *uptime})
	})
	return httptest.NewServer(mux)
}

func stripScheme(url string) string {
	const prefix = "http://"
	return url[len(prefix):]
}

func TestTokensFullRefresh(t *testing.T) {
	uptime := 1000
	srv := newTestServer(t, &uptime)
	defer srv.Close()

	c := New(transport.New(2 * time.Second))
	toks, err := c.Tokens(context.Background(), stripScheme(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	if toks.PswHex == "" || toks.PswHexPlus1 == "" {
		t.Fatalf("expected non-empty tokens, got %+v", toks)
	}
	if toks.PswHex == toks.PswHexPlus1 {
		t.Fatalf("expected primary and alternate tokens to differ")
	}
}

func TestTokensCheapRefreshReturnsCachedWithinDrift(t *testing.T) {
	uptime := 1000
	srv := newTestServer(t, &uptime)
	defer srv.Close()

	c := New(transport.New(2 * time.Second))
	ip := stripScheme(srv.URL)

	first, err := c.Tokens(context.Background(), ip)
	if err != nil {
		t.Fatal(err)
	}

	uptime += 5 // still within the same/adjacent 10s bucket most of the time
	second, err := c.Tokens(context.Background(), ip)
	if err != nil {
		t.Fatal(err)
	}

	if first.TimeInt == second.TimeInt && first.PswHex != second.PswHex {
		t.Fatalf("expected identical tokens for an unchanged time bucket")
	}
}

func TestTokensClockBackwardForcesFullRefresh(t *testing.T) {
	uptime := 1000
	srv := newTestServer(t, &uptime)
	defer srv.Close()

	c := New(transport.New(2 * time.Second))
	ip := stripScheme(srv.URL)

	if _, err := c.Tokens(context.Background(), ip); err != nil {
		t.Fatal(err)
	}

	// simulate the system clock jumping backward relative to cachedAt.
	c.now = func() time.Time { return time.Now().Add(-time.Hour) }

	toks, err := c.Tokens(context.Background(), ip)
	if err != nil {
		t.Fatal(err)
	}
	if toks.PswHex == "" {
		t.Fatalf("expected a full refresh to still succeed")
	}
}

func TestInvalidateForcesFullRefresh(t *testing.T) {
	uptime := 1000
	srv := newTestServer(t, &uptime)
	defer srv.Close()

	c := New(transport.New(2 * time.Second))
	ip := stripScheme(srv.URL)

	if _, err := c.Tokens(context.Background(), ip); err != nil {
		t.Fatal(err)
	}
	c.Invalidate(ip)

	c.mu.Lock()
	_, ok := c.entries[ip]
	c.mu.Unlock()
	if ok {
		t.Fatalf("expected entry to be removed after Invalidate")
	}
}
