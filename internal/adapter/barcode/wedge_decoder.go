package barcode

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

var ErrUnreadable = errors.New("barcode payload is not readable")

// WedgeDecoder handles keyboard-wedge style scanners, which emit the
// already-decoded code as text. Image decoding stays behind the same
// interface for scanners that upload raw captures.
type WedgeDecoder struct{}

func NewWedgeDecoder() *WedgeDecoder {
	return &WedgeDecoder{}
}

func (d *WedgeDecoder) Decode(_ context.Context, payload []byte) (string, error) {
	code := strings.TrimSpace(string(payload))
	if code == "" {
		return "", ErrUnreadable
	}
	for _, r := range code {
		if !unicode.IsPrint(r) {
			return "", ErrUnreadable
		}
	}
	return code, nil
}
