package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pitboss/internal/auth"
	"pitboss/internal/codec"
	"pitboss/internal/domain"
	"pitboss/internal/transport"
)

func TestEncodeSetTemperatureSnapsAndEncodes(t *testing.T) {
	hex, err := EncodeSetTemperature(237, domain.Fahrenheit)
	if err != nil {
		t.Fatal(err)
	}
	if hex != "FE0501020205FF" {
		t.Fatalf("expected FE0501020205FF, got %s", hex)
	}
}

func TestEncodeSetTemperatureOutOfRange(t *testing.T) {
	_, err := EncodeSetTemperature(600, domain.Fahrenheit)
	if err == nil {
		t.Fatal("expected ErrInvalidArgument")
	}
}

func TestSetLightAndPrimeAndPower(t *testing.T) {
	if SetLight(true) != "FE0201FF" || SetLight(false) != "FE0200FF" {
		t.Fatalf("unexpected SetLight encoding")
	}
	if SetPrime(true) != "FE0801FF" || SetPrime(false) != "FE0800FF" {
		t.Fatalf("unexpected SetPrime encoding")
	}
	if SetPower(true) != "FE0101FF" || SetPower(false) != "FE0102FF" {
		t.Fatalf("unexpected SetPower encoding: off must be 02, not 00")
	}
}

func TestIsFirmwareValid(t *testing.T) {
	cases := map[string]bool{
		"0.5.7": true,
		"0.5.6": false,
		"1.0":   true,
		"":      false,
	}
	for v, want := range cases {
		if got := IsFirmwareValid(v); got != want {
			t.Errorf("IsFirmwareValid(%q) = %v, want %v", v, got, want)
		}
	}
}

func TestSnapToApprovedMinimizesDistance(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{237, 225}, // 237 is 12 from 225, 13 from 250 -> 225
		{180, 180},
		{500, 500},
		{212, 200}, // 212 is 12 from 200, 13 from 225 -> 200
		{190, 180}, // tie: 10 from 180, 10 from 200 -> the lower, 180
	}
	for _, c := range cases {
		got := SnapToApproved(c.in, domain.Fahrenheit)
		if got != c.want {
			t.Errorf("SnapToApproved(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSnapToApprovedResultIsAlwaysApproved(t *testing.T) {
	for x := 0; x <= 600; x += 7 {
		got := SnapToApproved(x, domain.Fahrenheit)
		found := false
		for _, s := range domain.ApprovedSetpointsF {
			if s == got {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("SnapToApproved(%d) = %d is not an approved setpoint", x, got)
		}
	}
}

// authRetryServer accepts only the second (psw_hex_plus1) token,
// exercising the RPC layer's auth-retry-once policy.
func authRetryServer(t *testing.T, encPsw []byte) *httptest.Server {
	t.Helper()
	uptime := 100
	mux := http.NewServeMux()
	mux.HandleFunc("/extconfig.json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"psw": codec.EncodeHex(encPsw)})
	})
	mux.HandleFunc("/rpc/PB.GetTime", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"time": uptime})
	})
	var calls int
	mux.HandleFunc("/rpc/PB.GetState", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"sc_11": "00", "sc_12": "00"})
	})
	return httptest.NewServer(mux)
}

func TestGetStateRetriesWithAlternateToken(t *testing.T) {
	encPsw, err := codec.Codec([]byte("secret"), codec.FileDecodeKey, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	srv := authRetryServer(t, encPsw)
	defer srv.Close()

	ip := srv.URL[len("http://"):]
	httpClient := transport.New(2 * time.Second)
	authCache := auth.New(httpClient)
	client := New(httpClient, authCache)

	state, err := client.GetState(context.Background(), ip)
	if err != nil {
		t.Fatalf("expected retry with alternate token to succeed, got %v", err)
	}
	if state.SC11 != "00" {
		t.Fatalf("unexpected state: %+v", state)
	}
}
