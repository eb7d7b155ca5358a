package thumbs

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"
)

// Quality is the JPEG quality of every thumbnail.
const Quality = 85

var (
	checkerLight = color.RGBA{R: 204, G: 204, B: 204, A: 255}
	checkerDark  = color.RGBA{R: 153, G: 153, B: 153, A: 255}
)

// CheckerCell returns the checkerboard square edge used behind transparent
// pixels for a thumbnail of the given size: 8px at 128, scaled linearly,
// never below 4px.
func CheckerCell(size int) int {
	return max(4, size/16)
}

// Generate renders source at size and writes it to cachePath, creating the
// cache directory when needed. The file is written under a temporary name
// and renamed so readers never observe a partial JPEG.
func Generate(source, cachePath string, size int) error {
	img, err := render(source, size)
	if err != nil {
		return err
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create thumbnail dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*.jpg")
	if err != nil {
		return fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: Quality}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), cachePath)
}

// Render streams an uncached thumbnail of source to w.
func Render(w io.Writer, source string, size int) error {
	img, err := render(source, size)
	if err != nil {
		return err
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: Quality})
}

// render decodes source with its EXIF orientation applied, fits it inside a
// size x size box and flattens any transparency onto a checkerboard.
func render(source string, size int) (out *image.RGBA, err error) {
	size = ResolveSize(size)

	f, err := os.Open(source)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Some decoders panic on truncated input instead of returning an error.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("decode %s: %v", source, r)
		}
	}()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}

	if p, ok := img.(*image.Paletted); ok {
		nrgba := image.NewNRGBA(p.Bounds())
		xdraw.Draw(nrgba, nrgba.Bounds(), p, p.Bounds().Min, xdraw.Src)
		img = nrgba
	}

	img = resize.Thumbnail(uint(size), uint(size), img, resize.Lanczos3)
	return flatten(img, CheckerCell(size)), nil
}

// flatten returns an opaque copy of img anchored at the origin.
func flatten(img image.Image, cell int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
		return dst
	}

	drawChecker(dst, cell)
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Over)
	return dst
}

// drawChecker fills dst with alternating squares, light at the top-left.
func drawChecker(dst *image.RGBA, cell int) {
	light := image.NewUniform(checkerLight)
	dark := image.NewUniform(checkerDark)

	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += cell {
		for x := b.Min.X; x < b.Max.X; x += cell {
			src := light
			if ((x/cell)+(y/cell))%2 == 1 {
				src = dark
			}
			r := image.Rect(x, y, x+cell, y+cell).Intersect(b)
			xdraw.Draw(dst, r, src, image.Point{}, xdraw.Src)
		}
	}
}
