package thumbnail

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder

	"github.com/go-faster/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// MaxPixels bounds the decoded size of a source image.
const MaxPixels = 50_000_000

// ErrImageTooLarge is returned for images whose dimensions exceed MaxPixels.
var ErrImageTooLarge = errors.New("image too large")

// Resize decodes a JPEG, PNG or WebP image, scales it so its longest side is
// at most maxSide and encodes the result as JPEG. Smaller images keep their
// size.
func Resize(src []byte, maxSide, quality int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "decode image config")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, errors.Wrapf(ErrImageTooLarge, "%dx%d", cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}

	b := img.Bounds()
	w, h := fit(b.Dx(), b.Dy(), maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrapf(err, "encode %s as jpeg", format)
	}
	return out.Bytes(), nil
}

// fit scales w×h down to fit in a maxSide square, keeping the aspect ratio.
func fit(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
