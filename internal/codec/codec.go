// Package codec implements the grill's stateful, byte-evolving XOR
// cipher and the hex/byte plumbing around it. It has no I/O: every
// function here is pure and total over well-formed input, explicit
// about byte conversion with no silent panics on bad input.
package codec

import (
	"crypto/rand"
	"encoding/hex"
)

// FileDecodeKey decrypts the device password pulled from
// /extconfig.json. RPCAuthKeyBase derives the per-tick RPC auth tokens.
// Both are fixed 8-byte base keys.
var (
	FileDecodeKey  = [8]byte{0x5a, 0x13, 0xc7, 0x88, 0x2e, 0x91, 0x4f, 0xd6}
	RPCAuthKeyBase = [8]byte{0x3c, 0xa1, 0x7e, 0x44, 0xb9, 0x02, 0x5d, 0xf1}
)

const markerByte = 0xff

// Codec runs the stateful XOR-evolving cipher over data using key as
// the initial 8-byte key list. When paddingLen > 0, a random prefix
// (paddingLen bytes) plus a single 0xff marker byte is prepended before
// the main transform runs. When paddingLen == 0, the transform is run
// as-is and the output is truncated at (and including) the first 0xff
// byte found — recovering whatever plaintext followed the marker on
// the matching encrypt call.
//
// rpcMode selects which byte feeds the key-evolution step: the ciphered
// output (when padding was added, or rpcMode is set) or the raw input
// byte otherwise. Carrying both modes is required for
// en/decryption to stay in sync with each other.
func Codec(data []byte, key [8]byte, paddingLen int, rpcMode bool) ([]byte, error) {
	work := data
	if paddingLen > 0 {
		prefix := make([]byte, paddingLen+1)
		if _, err := rand.Read(prefix[:paddingLen]); err != nil {
			return nil, err
		}
		for i := 0; i < paddingLen; i++ {
			if prefix[i] == markerByte {
				prefix[i] = 0xfe
			}
		}
		prefix[paddingLen] = markerByte
		work = append(prefix, data...)
	}

	out := make([]byte, len(work))
	k := key
	for i := 1; i <= len(work); i++ {
		readIdx := (i - 1) % 8
		writeIdx := i % 8

		m := work[i-1] ^ k[readIdx]
		out[i-1] = m

		var src byte
		if paddingLen > 0 || rpcMode {
			src = m
		} else {
			src = work[i-1]
		}
		k[writeIdx] = byte((int(k[writeIdx]^src) + (i - 1)) % 256)
	}

	if paddingLen == 0 {
		for i, b := range out {
			if b == markerByte {
				return out[i+1:], nil
			}
		}
	}
	return out, nil
}

// GetCodecKey derives an 8-byte key list from base for time bucket t
// by repeatedly removing one element from a shrinking working list.
func GetCodecKey(base [8]byte, t int) [8]byte {
	list := make([]int, len(base))
	for i, b := range base {
		list[i] = int(b)
	}

	out := make([]int, 0, len(base))
	l := mod256(t)

	for len(list) > 1 {
		p := l % len(list) // 0-based position of the (1-based p = l%len+1)'th element
		removed := list[p]
		list = append(list[:p], list[p+1:]...)
		out = append(out, mod256((removed^l)))
		l = mod256(l*removed + removed)
	}
	out = append(out, list[0])

	var key [8]byte
	for i, v := range out {
		key[i] = byte(v)
	}
	return key
}

func mod256(v int) int {
	v %= 256
	if v < 0 {
		v += 256
	}
	return v
}

// GetCodecTime derives the auth time bucket from the grill's reported
// uptime in seconds.
func GetCodecTime(uptimeSeconds int) int {
	safe := uptimeSeconds - 5
	if safe < 0 {
		safe = 0
	}
	const maxInt31 = 1<<31 - 1
	if safe > maxInt31 {
		safe = safe % 86400
	}
	return safe / 10
}

// EncodeHex renders b as lowercase hex, the inverse of DecodeHex.
func EncodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodeHex decodes s two nibbles at a time; any non-hex nibble
// contributes 0 rather than failing the whole decode.
func DecodeHex(s string) []byte {
	if len(s)%2 != 0 {
		s += "0"
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		hi := nibble(s[i*2])
		lo := nibble(s[i*2+1])
		out[i] = hi<<4 | lo
	}
	return out
}

func nibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}
