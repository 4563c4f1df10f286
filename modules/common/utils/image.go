package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strings"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
)

// DefaultImageMIME is assumed when a reference image carries no usable MIME type.
const DefaultImageMIME = "image/png"

var (
	ErrInvalidDataURI   = errors.New("invalid data uri")
	ErrUnsupportedImage = errors.New("unsupported image format")
)

// EncodeDataURI - data:<mime>;base64,<payload>
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its MIME type and raw bytes.
// A missing MIME type yields DefaultImageMIME.
func DecodeDataURI(uri string) (string, []byte, error) {
	if !strings.HasPrefix(uri, "data:") {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrInvalidDataURI)
	}
	mimeType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", ErrInvalidDataURI)
	}
	if mimeType == "" {
		mimeType = DefaultImageMIME
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return mimeType, data, nil
}

// NormalizeUpload sniffs an uploaded reference image. PNG and JPEG pass
// through, WebP is re-encoded as PNG so the video model accepts it.
func NormalizeUpload(data []byte) (string, []byte, error) {
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}

	switch detected := http.DetectContentType(data); detected {
	case "image/png", "image/jpeg":
		return detected, data, nil
	case "image/webp":
		pngData, err := ConvertWebPToPNG(data)
		if err != nil {
			return "", nil, err
		}
		return "image/png", pngData, nil
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, detected)
	}
}

// ConvertWebPToPNG - WebP 바이너리를 PNG로 변환
func ConvertWebPToPNG(webpData []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(webpData), &decoder.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode WebP: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
