package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/kozaktomas/facesearch/internal/faceerr"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ImageInfo is the header information of a validated image.
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// ValidateImage checks that data starts with a decodable image header of a supported
// format and a non-empty size. It does not decode pixel data.
func ValidateImage(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, fmt.Errorf("%w: empty image", faceerr.ErrInvalidArgument)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%w: unreadable image: %v", faceerr.ErrInvalidArgument, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, fmt.Errorf("%w: image has no pixels", faceerr.ErrInvalidArgument)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
