package qr

import (
	"sort"

	sh "github.com/gofhir/smarthealth"
)

// Decode reassembles a JWS from an unordered set of scanned QR content
// strings. It rejects inconsistent totals, out-of-range or duplicate
// indices, missing chunks, empty payloads and malformed prefixes.
func Decode(contents []string) (string, error) {
	if len(contents) == 0 {
		return "", sh.NewError(sh.KindQRCode, "no QR content to decode")
	}

	chunks := make([]Chunk, 0, len(contents))
	for _, content := range contents {
		chunk, err := ParseChunk(content)
		if err != nil {
			return "", err
		}
		chunks = append(chunks, chunk)
	}

	// Single unindexed code.
	if len(chunks) == 1 && chunks[0].Total == 0 {
		return DecodeNumericToJWS(chunks[0].Digits)
	}

	total := 0
	byIndex := make(map[int]Chunk, len(chunks))
	for _, chunk := range chunks {
		if chunk.Total == 0 {
			return "", sh.NewError(sh.KindQRCode, "cannot mix chunked and unchunked QR codes")
		}
		if total == 0 {
			total = chunk.Total
		} else if chunk.Total != total {
			return "", sh.Errorf(sh.KindQRCode,
				"inconsistent chunk totals: %d and %d", total, chunk.Total)
		}
		if chunk.Index > chunk.Total {
			return "", sh.Errorf(sh.KindQRCode, "chunk index %d/%d out of range", chunk.Index, chunk.Total)
		}
		if _, seen := byIndex[chunk.Index]; seen {
			return "", sh.Errorf(sh.KindQRCode, "duplicate chunk index %d", chunk.Index)
		}
		byIndex[chunk.Index] = chunk
	}

	if len(byIndex) != total {
		missing := make([]int, 0)
		for i := 1; i <= total; i++ {
			if _, ok := byIndex[i]; !ok {
				missing = append(missing, i)
			}
		}
		sort.Ints(missing)
		return "", sh.Errorf(sh.KindQRCode, "missing chunk indices %v of %d", missing, total)
	}

	var digits string
	for i := 1; i <= total; i++ {
		digits += byIndex[i].Digits
	}

	return DecodeNumericToJWS(digits)
}
