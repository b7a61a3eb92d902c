package jose

import (
	"bytes"
	"compress/flate"
	"io"

	sh "github.com/gofhir/smarthealth"
	"github.com/gofhir/smarthealth/pool"
)

// Deflate compresses data with raw DEFLATE (no zlib wrapper), as the
// SMART Health Cards spec requires for zip=DEF payloads.
func Deflate(data []byte) ([]byte, error) {
	buf := pool.AcquireBuffer()
	defer pool.ReleaseBuffer(buf)

	w, err := flate.NewWriter(buf, flate.BestCompression)
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "cannot create deflate writer", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "deflate failed", err)
	}
	if err := w.Close(); err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "deflate failed", err)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Inflate decompresses raw DEFLATE data.
func Inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, sh.WrapError(sh.KindPayloadValidation, "inflate failed", err)
	}
	return out, nil
}
