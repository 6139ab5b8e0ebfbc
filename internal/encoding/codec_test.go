package encoding

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vectors := [][]float32{
		{},
		{0},
		{1.5, -2.25, 0.000123, 4096},
		{math.Pi, math.MaxFloat32, math.SmallestNonzeroFloat32},
		{float32(math.Inf(1)), float32(math.Inf(-1))},
	}

	for _, v := range vectors {
		text := Encode("facenet", v)

		algo, decoded, err := Decode(text)
		if err != nil {
			t.Fatalf("Decode(%q) returned error: %v", text, err)
		}
		if algo != "facenet" {
			t.Errorf("expected algorithm 'facenet', got %q", algo)
		}
		if len(decoded) != len(v) {
			t.Fatalf("expected %d values, got %d", len(v), len(decoded))
		}
		for i := range v {
			// Bit-exact comparison, the codec stores raw float32.
			if math.Float32bits(decoded[i]) != math.Float32bits(v[i]) {
				t.Errorf("value %d: expected %v, got %v", i, v[i], decoded[i])
			}
		}
	}
}

func TestDecodeNaNSurvives(t *testing.T) {
	nan := float32(math.NaN())
	_, decoded, err := Decode(Encode("hog", []float32{nan}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(float64(decoded[0])) {
		t.Errorf("expected NaN to survive round trip, got %v", decoded[0])
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no separators", "justtext"},
		{"one separator", "facenet:v1"},
		{"empty algorithm", ":v1:AAAA"},
		{"unknown version", "facenet:v9:AAAA"},
		{"invalid base64", "facenet:v1:!!!not-base64!!!"},
		{"truncated payload", "facenet:v1:" + "AAA"}, // 2 bytes decoded, not multiple of 4
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Decode(tc.text)
			if err == nil {
				t.Fatalf("expected error for %q", tc.text)
			}
			if !errors.Is(err, ErrMalformedEncoding) {
				t.Errorf("expected ErrMalformedEncoding, got %v", err)
			}
		})
	}
}

func TestEncodeFormat(t *testing.T) {
	text := Encode("lbph", []float32{1})
	if !strings.HasPrefix(text, "lbph:v1:") {
		t.Errorf("expected 'lbph:v1:' prefix, got %q", text)
	}
}
