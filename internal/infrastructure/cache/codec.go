package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Stored values carry a one-byte header so readers never guess at the
// encoding.
const (
	encodingRaw  byte = 0x00
	encodingGzip byte = 0x01
)

// encode frames payload for storage, gzipping above threshold.
func encode(payload []byte, threshold int) ([]byte, error) {
	if len(payload) <= threshold {
		out := make([]byte, 0, len(payload)+1)
		out = append(out, encodingRaw)
		return append(out, payload...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(encodingGzip)
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("failed to compress cache value: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress cache value: %w", err)
	}
	return buf.Bytes(), nil
}

// decode unwraps a stored value.
func decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("empty cache value")
	}
	switch stored[0] {
	case encodingRaw:
		return stored[1:], nil
	case encodingGzip:
		zr, err := gzip.NewReader(bytes.NewReader(stored[1:]))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress cache value: %w", err)
		}
		defer zr.Close()
		payload, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress cache value: %w", err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unknown cache encoding 0x%02x", stored[0])
	}
}
