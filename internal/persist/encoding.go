package persist

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// ErrUnknownEncoding wraps an encoding name IANA does not know.
type ErrUnknownEncoding struct {
	Name string
}

func (e *ErrUnknownEncoding) Error() string {
	return fmt.Sprintf("unknown character encoding %q", e.Name)
}

func isUTF8(name string) bool {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// DecodeToUTF8 converts file bytes in the named encoding to UTF-8.
// Buffers hold UTF-8 internally regardless of the file's encoding.
func DecodeToUTF8(data []byte, name string) (string, error) {
	if isUTF8(name) {
		return string(data), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", &ErrUnknownEncoding{Name: name}
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decoding %s content: %w", name, err)
	}
	return string(out), nil
}

// EncodeFromUTF8 converts UTF-8 content to the named encoding for
// writing the document file.
func EncodeFromUTF8(s string, name string) ([]byte, error) {
	if isUTF8(name) {
		return []byte(s), nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, &ErrUnknownEncoding{Name: name}
	}

	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("encoding content as %s: %w", name, err)
	}
	return out, nil
}
