package metadata

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// Cover is cover art ready to embed
type Cover struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// ImageSize returns the pixel dimensions of an encoded image
func ImageSize(data []byte) (int, int, bool) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, false
	}
	return cfg.Width, cfg.Height, true
}

// PrepareCover shrinks covers larger than maxSize on either side so that
// they fit in a maxSize square. Images that cannot be decoded are passed
// through untouched with unknown dimensions.
func PrepareCover(data []byte, mime string, maxSize int) *Cover {
	cover := &Cover{Data: data, MIME: mime}

	width, height, ok := ImageSize(data)
	if !ok {
		return cover
	}
	cover.Width, cover.Height = width, height

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		return cover
	}

	resized, format, err := resizeImage(data, maxSize)
	if err != nil {
		return cover
	}

	bounds := resized.Bounds()
	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, resized)
		cover.MIME = "image/png"
	default:
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95})
		cover.MIME = "image/jpeg"
	}
	if err != nil {
		return &Cover{Data: data, MIME: mime, Width: width, Height: height}
	}

	cover.Data = buf.Bytes()
	cover.Width, cover.Height = bounds.Dx(), bounds.Dy()
	return cover
}

// resizeImage scales the image so its larger side equals targetSize
func resizeImage(imageData []byte, targetSize int) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > bounds.Dy() {
		return resize.Resize(uint(targetSize), 0, img, resize.Lanczos3), format, nil
	}
	return resize.Resize(0, uint(targetSize), img, resize.Lanczos3), format, nil
}
