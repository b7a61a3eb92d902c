package qr

import (
	"fmt"

	sh "github.com/gofhir/smarthealth"
)

// Prefix is the URI scheme framing every QR payload.
const Prefix = "shc:/"

// ErrorCorrectionLevel selects the QR error correction level, which in
// turn bounds how many JWS characters fit in a single Version-22 code.
type ErrorCorrectionLevel string

// Error correction levels.
const (
	LevelLow      ErrorCorrectionLevel = "L"
	LevelMedium   ErrorCorrectionLevel = "M"
	LevelQuartile ErrorCorrectionLevel = "Q"
	LevelHigh     ErrorCorrectionLevel = "H"
)

// maxSizeByLevel maps each level to the default single-QR JWS budget
// (Version-22 limits).
var maxSizeByLevel = map[ErrorCorrectionLevel]int{
	LevelLow:      1195,
	LevelMedium:   927,
	LevelQuartile: 670,
	LevelHigh:     519,
}

// MaxSingleQRSize returns the default JWS-character budget for a level.
// Unknown levels fall back to the LevelLow budget.
func MaxSingleQRSize(level ErrorCorrectionLevel) int {
	if size, ok := maxSizeByLevel[level]; ok {
		return size
	}
	return maxSizeByLevel[LevelLow]
}

// EncodeOptions configures Encode.
type EncodeOptions struct {
	// EnableChunking allows splitting JWS strings that exceed the
	// single-QR budget across several codes.
	EnableChunking bool

	// MaxSingleQRSize overrides the per-level default budget when > 0.
	MaxSingleQRSize int

	// Level is the QR error correction level; defaults to LevelLow.
	Level ErrorCorrectionLevel
}

// Encode produces the framed QR content strings for a JWS. A token
// within budget yields a single "shc:/<digits>" string; with chunking
// enabled, longer tokens split into balanced chunks framed as
// "shc:/<n>/<N>/<digits>".
func Encode(jws string, opts EncodeOptions) ([]string, error) {
	level := opts.Level
	if level == "" {
		level = LevelLow
	}
	maxSize := opts.MaxSingleQRSize
	if maxSize <= 0 {
		maxSize = MaxSingleQRSize(level)
	}

	if !opts.EnableChunking || len(jws) <= maxSize {
		digits, err := EncodeJWSToNumeric(jws)
		if err != nil {
			return nil, err
		}
		return []string{Prefix + digits}, nil
	}

	parts := balancedSplit(jws, maxSize)
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		digits, err := EncodeJWSToNumeric(part)
		if err != nil {
			return nil, err
		}
		out = append(out, fmt.Sprintf("%s%d/%d/%s", Prefix, i+1, len(parts), digits))
	}
	return out, nil
}

// balancedSplit divides s into n = ceil(len/maxSize) slabs of
// ceil(len/n) characters each; the last slab holds the remainder and can
// be shorter than the others by more than one (len 10, maxSize 4 gives
// 4, 4, 2).
func balancedSplit(s string, maxSize int) []string {
	n := (len(s) + maxSize - 1) / maxSize
	slab := (len(s) + n - 1) / n

	parts := make([]string, 0, n)
	for start := 0; start < len(s); start += slab {
		end := start + slab
		if end > len(s) {
			end = len(s)
		}
		parts = append(parts, s[start:end])
	}
	return parts
}

// Chunk is one parsed QR content string.
type Chunk struct {
	// Index is the 1-based chunk position; 0 for a single unindexed code.
	Index int

	// Total is the declared chunk count; 0 for a single unindexed code.
	Total int

	// Digits is the numeric payload.
	Digits string
}

// ParseChunk splits a framed QR content string into its parts. It
// rejects malformed prefixes, empty payloads and non-digit bodies.
func ParseChunk(content string) (Chunk, error) {
	if len(content) < len(Prefix) || content[:len(Prefix)] != Prefix {
		return Chunk{}, sh.Errorf(sh.KindQRCode, "QR content missing %q prefix", Prefix)
	}
	rest := content[len(Prefix):]
	if rest == "" {
		return Chunk{}, sh.NewError(sh.KindQRCode, "QR content has empty payload")
	}

	if allDigits(rest) {
		return Chunk{Digits: rest}, nil
	}

	var index, total int
	var digits string
	if _, err := fmt.Sscanf(rest, "%d/%d/%s", &index, &total, &digits); err != nil {
		return Chunk{}, sh.Errorf(sh.KindQRCode, "malformed QR content %q", content)
	}
	if !allDigits(digits) {
		return Chunk{}, sh.Errorf(sh.KindQRCode, "QR payload contains non-digit characters")
	}
	if index < 1 || total < 1 {
		return Chunk{}, sh.Errorf(sh.KindQRCode, "chunk index %d/%d out of range", index, total)
	}
	return Chunk{Index: index, Total: total, Digits: digits}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
