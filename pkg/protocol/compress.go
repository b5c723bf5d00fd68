package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflate compresses b using raw DEFLATE (no zlib/gzip wrapper), matching
// the COMPRESSED flag's contract in spec.md §4.1. klauspost/compress is used
// instead of the standard library's compress/flate for its lower allocation
// overhead on small, frequent payloads — the same package this corpus's
// sarchlab-akita and ValentinKolb-dKV modules already depend on.
func deflate(b []byte) ([]byte, error) {
	var out bytes.Buffer
	w, err := flate.NewWriter(&out, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("unp: deflate: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, fmt.Errorf("unp: deflate: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("unp: deflate: %w", err)
	}
	return out.Bytes(), nil
}

// inflate reverses deflate.
func inflate(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unp: inflate: %w", err)
	}
	return out, nil
}
