// Package storage persists analyzed photos and returns their public URLs.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrEmptyImage       = errors.New("no image data provided")
	ErrInvalidEncoding  = errors.New("image payload is not valid base64")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// ImageStore uploads image bytes and returns a URL the client can load
type ImageStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// allowedTypes maps accepted MIME types to file extensions
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// DecodeImagePayload accepts raw base64 or a data URL and returns the image
// bytes with their sniffed content type. A declared data URL type is ignored
// in favour of the bytes themselves.
func DecodeImagePayload(payload string) ([]byte, string, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, "", ErrInvalidEncoding
		}
		payload = payload[comma+1:]
	}
	if payload == "" {
		return nil, "", ErrEmptyImage
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	contentType, err := DetectContentType(data)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// DetectContentType sniffs data and rejects anything but the supported
// image formats.
func DetectContentType(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if _, ok := allowedTypes[m.String()]; ok {
			return m.String(), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)

	if strings.ContainsAny(s, "-_") {
		return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// objectName builds a date-partitioned, collision-free name for an upload
func objectName(now time.Time, contentType string) string {
	ext, ok := allowedTypes[contentType]
	if !ok {
		ext = ".bin"
	}
	return path.Join("analyses", now.UTC().Format("2006/01/02"), uuid.NewString()+ext)
}
