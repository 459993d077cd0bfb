package composite

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Decode decodes a PNG, JPEG or WebP tile body.
func Decode(body []byte) (image.Image, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("decode tile: empty body")
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	return img, nil
}
