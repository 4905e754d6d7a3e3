// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pi30

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPayload returns printable ASCII without the terminator, like real
// device payloads.
func randomPayload(rng *rand.Rand) []byte {
	payload := make([]byte, rng.Intn(120))
	for i := range payload {
		payload[i] = byte(0x20 + rng.Intn(0x5F))
	}
	return payload
}

// ============================================================
// Codec Fuzz Tests
// ============================================================

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	for round := 0; round < getFuzzRounds(); round++ {
		payload := randomPayload(rng)
		got, err := DecodeFrame(buildResponse(payload), true)
		if err != nil {
			t.Fatalf("round %d: decode of %q failed: %v", round, payload, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("round %d: %q != %q", round, got, payload)
		}
	}
}

func TestFuzz_Truncation(t *testing.T) {
	rng := newFuzzRng(t)
	for round := 0; round < getFuzzRounds(); round++ {
		frame := buildResponse(randomPayload(rng))
		n := rng.Intn(MinResponseSize)
		if _, err := DecodeFrame(frame[:n], false); !errors.Is(err, ErrFormat) {
			t.Fatalf("round %d: truncated to %d bytes, expected format error, got %v", round, n, err)
		}
	}
}

func TestFuzz_BitFlip(t *testing.T) {
	rng := newFuzzRng(t)
	for round := 0; round < getFuzzRounds(); round++ {
		payload := randomPayload(rng)
		if len(payload) == 0 {
			continue
		}
		frame := buildResponse(payload)
		i := 1 + rng.Intn(len(payload))
		frame[i] ^= 1 << uint(rng.Intn(8))
		if _, err := DecodeFrame(frame, false); !errors.Is(err, ErrChecksum) {
			t.Fatalf("round %d: flipped byte %d, expected checksum error, got %v", round, i, err)
		}
	}
}

func TestFuzz_Garbage(t *testing.T) {
	rng := newFuzzRng(t)
	for round := 0; round < getFuzzRounds(); round++ {
		garbage := make([]byte, rng.Intn(64))
		rng.Read(garbage)
		garbage = append(garbage, Terminator)

		dev := NewMockDevice(func(req []byte) []byte { return garbage })
		_, err := Execute[string](New(dev), Raw{Mnemonic: "QPIGS"})
		if err == nil {
			// Random bytes can still form a valid frame
			continue
		}
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("round %d: error outside the taxonomy: %v", round, err)
		}
	}
}
