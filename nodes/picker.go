package nodes

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"

	"image-folder-picker/scan"
)

// AlwaysChanged is returned by IsChanged when the node must re-run on every
// execution.
const AlwaysChanged = "NaN"

var ErrImageNotFound = errors.New("image not found")

// PickerResult holds the outputs of the ImageFolderPicker node.
type PickerResult struct {
	Image      Tensor `json:"image"`
	Mask       Tensor `json:"mask"`
	ImagePath  string `json:"image_path"`
	ImageCount int    `json:"image_count"`
}

// Load reads the selected image of folder. With nothing selected it returns
// placeholder tensors and an empty path; image_count is reported either way.
// The image is upright per its EXIF orientation, animations yield their
// first frame, and the mask is the inverted alpha channel.
func Load(folder, selected string) (*PickerResult, error) {
	count := 0
	if names, err := scan.ImagesIn(folder); err == nil && folder != "" {
		count = len(names)
	}

	if folder == "" || selected == "" {
		return &PickerResult{
			Image:      EmptyImage(),
			Mask:       EmptyMask(),
			ImageCount: count,
		}, nil
	}

	path := filepath.Join(folder, selected)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	rgb, mask := toTensors(img)
	return &PickerResult{
		Image:      rgb,
		Mask:       mask,
		ImagePath:  path,
		ImageCount: count,
	}, nil
}

// toTensors splits img into straight (non-premultiplied) RGB and a mask of
// 1 - alpha. Opaque images get an all-zero mask.
func toTensors(img image.Image) (Tensor, Tensor) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	rgb := Zeros(1, h, w, 3)
	mask := Zeros(1, h, w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := y*w + x
			rgb.Data[i*3] = float32(c.R) / 255
			rgb.Data[i*3+1] = float32(c.G) / 255
			rgb.Data[i*3+2] = float32(c.B) / 255
			mask.Data[i] = 1 - float32(c.A)/255
		}
	}
	return rgb, mask
}

// IsChanged returns the cache key of the selection: its path, mtime and
// size. The editor re-runs the node whenever the key differs.
func IsChanged(folder, selected string) string {
	if folder == "" || selected == "" {
		return AlwaysChanged
	}

	path := filepath.Join(folder, selected)
	info, err := os.Stat(path)
	if err != nil {
		return AlwaysChanged
	}

	mtime := float64(info.ModTime().UnixNano()) / 1e9
	return fmt.Sprintf("%s_%s_%d", path, strconv.FormatFloat(mtime, 'f', -1, 64), info.Size())
}

// ValidateInputs rejects a selection that no longer exists on disk.
func ValidateInputs(folder, selected string) error {
	if folder == "" || selected == "" {
		return nil
	}
	path := filepath.Join(folder, selected)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrImageNotFound, path)
	}
	return nil
}
