package codec

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		n := rand.Intn(32)
		b := make([]byte, n)
		rand.Read(b)
		got := DecodeHex(EncodeHex(b))
		if !bytes.Equal(got, b) {
			t.Fatalf("round trip mismatch for %x: got %x", b, got)
		}
	}
}

func TestDecodeHexOddLength(t *testing.T) {
	// an odd nibble count still decodes without panicking.
	got := DecodeHex("abc")
	if len(got) != 2 {
		t.Fatalf("expected 2 bytes, got %d", len(got))
	}
}

// TestCodecRoundTripWithPadding covers the padded-encrypt/unpadded-
// decrypt pairing this package actually uses (internal/auth's
// extconfig.json password, decrypted with rpcMode=false). Padding
// always folds the ciphered byte back into the key evolution, so only
// a matching rpcMode=false decrypt re-derives the same key schedule;
// rpcMode is a property of the one-shot password-derivation encrypt
// call, never of a padded round trip, so it has no "true" case here.
func TestCodecRoundTripWithPadding(t *testing.T) {
	data := []byte("the quick brown fox jumps")
	key := GetCodecKey(RPCAuthKeyBase, 12345)

	enc, err := Codec(data, key, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := Codec(enc, key, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, data) {
		t.Fatalf("round trip mismatch: got %q want %q", dec, data)
	}
}

func TestCodecRoundTripManyKeysAndTimes(t *testing.T) {
	for trial := 0; trial < 20; trial++ {
		t0 := rand.Intn(1_000_000)
		key := GetCodecKey(FileDecodeKey, t0)
		n := 1 + rand.Intn(40)
		data := make([]byte, n)
		rand.Read(data)

		enc, err := Codec(data, key, 8, false)
		if err != nil {
			t.Fatal(err)
		}
		dec, err := Codec(enc, key, 0, false)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(dec, data) {
			t.Fatalf("trial %d (t=%d): mismatch got %x want %x", trial, t0, dec, data)
		}
	}
}

func TestGetCodecKeyLength(t *testing.T) {
	key := GetCodecKey(RPCAuthKeyBase, 99)
	if len(key) != 8 {
		t.Fatalf("expected 8-byte key, got %d", len(key))
	}
}

func TestGetCodecKeyDeterministic(t *testing.T) {
	a := GetCodecKey(RPCAuthKeyBase, 42)
	b := GetCodecKey(RPCAuthKeyBase, 42)
	if a != b {
		t.Fatalf("expected deterministic derivation: %v != %v", a, b)
	}
	c := GetCodecKey(RPCAuthKeyBase, 43)
	if a == c {
		t.Fatalf("expected different time bucket to change the key")
	}
}

func TestGetCodecTime(t *testing.T) {
	cases := []struct {
		uptime int
		want   int
	}{
		{uptime: 0, want: 0},
		{uptime: 5, want: 0},
		{uptime: 15, want: 1},
		{uptime: 105, want: 10},
	}
	for _, c := range cases {
		got := GetCodecTime(c.uptime)
		if got != c.want {
			t.Errorf("GetCodecTime(%d) = %d, want %d", c.uptime, got, c.want)
		}
	}
}

func TestGetCodecTimeWrapsLargeUptime(t *testing.T) {
	const big = 1<<31 + 100
	got := GetCodecTime(big)
	safe := big - 5
	want := (safe % 86400) / 10
	if got != want {
		t.Fatalf("GetCodecTime(%d) = %d, want %d", big, got, want)
	}
}
