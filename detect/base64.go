package detect

import (
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrInvalidBase64  = errors.New("invalid base64")
	ErrInvalidDataURL = errors.New("invalid data URL")
)

// DecodeBase64Image dekodiert reines Base64 oder eine Data-URL
// (data:image/jpeg;base64,...)
func DecodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, "base64,")
		if !ok {
			return nil, ErrInvalidDataURL
		}
		s = payload
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Join(ErrInvalidBase64, err)
	}
	return data, nil
}
