// Package thumbs maintains on-disk JPEG previews for the images of a folder.
//
// Thumbnails live in a ".thumbs" directory next to their source, one file
// per (source, size) pair. A thumbnail is fresh while its mtime is not older
// than the source's; nothing else is compared.
package thumbs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Dir is the cache directory created inside every source folder.
const Dir = ".thumbs"

// DefaultSize is used for any size outside Sizes.
const DefaultSize = 128

// Sizes are the supported longest-edge lengths, in pixels.
var Sizes = []int{128, 256, 346, 478, 512}

// ResolveSize returns size when it is one of Sizes and DefaultSize otherwise.
func ResolveSize(size int) int {
	for _, s := range Sizes {
		if s == size {
			return size
		}
	}
	return DefaultSize
}

// ParseSize resolves a size query parameter. Anything that is not an exact
// decimal member of Sizes yields DefaultSize.
func ParseSize(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultSize
	}
	return ResolveSize(n)
}

// CachePath returns where the thumbnail of folder/filename at size is stored.
// The default size omits the size suffix so caches written by older versions
// stay valid.
func CachePath(folder, filename string, size int) string {
	size = ResolveSize(size)
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	name := stem + "_thumb"
	if size != DefaultSize {
		name += "_" + strconv.Itoa(size)
	}
	return filepath.Join(folder, Dir, name+".jpg")
}

// IsValid reports whether cachePath exists and is at least as new as source.
// An mtime tie counts as fresh.
func IsValid(source, cachePath string) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	sourceInfo, err := os.Stat(source)
	if err != nil {
		return false
	}
	return !cacheInfo.ModTime().Before(sourceInfo.ModTime())
}
