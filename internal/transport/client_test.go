package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequestRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Connection") != "close" {
			t.Errorf("expected Connection: close, got %q", r.Header.Get("Connection"))
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	resp, err := c.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
}

func TestRequestTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(10 * time.Millisecond)
	_, err := c.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var terr *Error
	if !asError(err, &terr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if terr.Kind != Timeout {
		t.Fatalf("expected Timeout kind, got %v", terr.Kind)
	}
}

func TestRequestConnectFailedClassified(t *testing.T) {
	c := New(200 * time.Millisecond)
	_, err := c.Request(context.Background(), http.MethodGet, "http://127.0.0.1:1", nil, nil)
	if err == nil {
		t.Fatal("expected connect error")
	}
	var terr *Error
	if !asError(err, &terr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
}

func TestPostJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"time":123}`))
	}))
	defer srv.Close()

	c := New(2 * time.Second)
	var out struct {
		Time int `json:"time"`
	}
	_, err := c.PostJSON(context.Background(), srv.URL, map[string]any{}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if out.Time != 123 {
		t.Fatalf("expected time=123, got %d", out.Time)
	}
}

func asError(err error, target **Error) bool {
	if e, ok := err.(*Error); ok {
		*target = e
		return true
	}
	return false
}
