package epub

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const thumbnailName = "thumbnail.png"

// makeThumbnail scales image down to width pixels keeping aspect ratio and
// encodes result as PNG. Smaller images are not enlarged.
func makeThumbnail(src string, width int) ([]byte, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}

	var res image.Image = img
	if width > 0 && img.Bounds().Dx() > width {
		res = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, res, imaging.PNG); err != nil {
		return nil, fmt.Errorf("unable to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
