package helpers

import (
	"bytes"
	"io"
)

// bytesReader returns a fresh reader per call so retried uploads resend the whole file.
func bytesReader(data []byte) io.Reader {
	return bytes.NewReader(data)
}
