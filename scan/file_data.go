package scan

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// IsImage reports whether name carries one of the supported image extensions.
// The check is case-insensitive and never touches the filesystem.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// Extensions returns the supported extensions, sorted.
func Extensions() []string {
	exts := make([]string, 0, len(imageExtensions))
	for ext := range imageExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// FileData is a point-in-time snapshot of one image file.
type FileData struct {
	Name     string
	Size     int64
	Modified time.Time
	Width    int
	Height   int
}

// Probe reads just enough of the file header to report its pixel dimensions.
func Probe(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("probe %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Prober resolves image dimensions. Implementations return 0, 0 when the
// header cannot be read.
type Prober interface {
	Dimensions(path string, info os.FileInfo) (width, height int)
}

// ProberFunc adapts a plain function to Prober.
type ProberFunc func(path string, info os.FileInfo) (int, int)

func (f ProberFunc) Dimensions(path string, info os.FileInfo) (int, int) {
	return f(path, info)
}

// Direct probes every file on each call, with no caching.
var Direct Prober = ProberFunc(func(path string, _ os.FileInfo) (int, int) {
	w, h, err := Probe(path)
	if err != nil {
		return 0, 0
	}
	return w, h
})
