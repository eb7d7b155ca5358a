// Package listing enumerates folders for the picker UI: the images and
// subfolders of one folder, and the directory tree for the folder dialog.
package listing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"image-folder-picker/scan"
)

var (
	ErrNotFound   = errors.New("not a directory")
	ErrPermission = errors.New("permission denied")
)

// Sort orders for images. Subfolders are always ordered by name.
const (
	SortName     = "name"
	SortDateAsc  = "date_asc"
	SortDateDesc = "date_desc"
)

// NormalizeSort maps unknown sort modes to SortName.
func NormalizeSort(mode string) string {
	switch mode {
	case SortDateAsc, SortDateDesc:
		return mode
	default:
		return SortName
	}
}

type ImageEntry struct {
	Filename string  `json:"filename"`
	Size     int64   `json:"size"`
	Modified float64 `json:"modified"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Type     string  `json:"type"`
}

type FolderEntry struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Modified float64 `json:"modified"`
	Type     string  `json:"type"`
}

// Listing is the content of one folder as shown by the picker.
type Listing struct {
	Folder     string        `json:"folder"`
	Parent     string        `json:"parent"`
	Subfolders []FolderEntry `json:"subfolders"`
	Images     []ImageEntry  `json:"images"`
	Count      int           `json:"count"`
	Sort       string        `json:"sort"`
}

// List reads folder and returns its images ordered by mode and its
// non-hidden subfolders ordered by name. Dimensions come from prober,
// or are probed directly when prober is nil.
func List(folder, mode string, prober scan.Prober) (*Listing, error) {
	if prober == nil {
		prober = scan.Direct
	}
	mode = NormalizeSort(mode)

	folder, err := filepath.Abs(folder)
	if err != nil {
		return nil, err
	}

	entries, err := readDir(folder)
	if err != nil {
		return nil, err
	}

	folders := []FolderEntry{}
	files := []scan.FileData{}
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(folder, name)

		// Stat follows symlinks so linked folders and images are listed.
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		if info.IsDir() {
			if isHidden(name) {
				continue
			}
			folders = append(folders, FolderEntry{
				Name:     name,
				Path:     path,
				Modified: unixSeconds(info.ModTime()),
				Type:     "folder",
			})
			continue
		}

		if !scan.IsImage(name) || !info.Mode().IsRegular() {
			continue
		}
		width, height := prober.Dimensions(path, info)
		files = append(files, scan.FileData{
			Name:     name,
			Size:     info.Size(),
			Modified: info.ModTime(),
			Width:    width,
			Height:   height,
		})
	}

	sort.SliceStable(folders, func(i, j int) bool {
		return lessFold(folders[i].Name, folders[j].Name)
	})
	sortImages(files, mode)

	images := make([]ImageEntry, len(files))
	for i, f := range files {
		images[i] = ImageEntry{
			Filename: f.Name,
			Size:     f.Size,
			Modified: unixSeconds(f.Modified),
			Width:    f.Width,
			Height:   f.Height,
			Type:     "image",
		}
	}

	return &Listing{
		Folder:     folder,
		Parent:     parentOf(folder),
		Subfolders: folders,
		Images:     images,
		Count:      len(images),
		Sort:       mode,
	}, nil
}

func sortImages(files []scan.FileData, mode string) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		switch mode {
		case SortDateAsc:
			if !a.Modified.Equal(b.Modified) {
				return a.Modified.Before(b.Modified)
			}
		case SortDateDesc:
			if !a.Modified.Equal(b.Modified) {
				return a.Modified.After(b.Modified)
			}
		}
		return lessFold(a.Name, b.Name)
	})
}

// readDir lists a directory, classifying failures as ErrNotFound or
// ErrPermission.
func readDir(folder string) ([]os.DirEntry, error) {
	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermission, folder)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, folder)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, folder)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermission, folder)
		}
		return nil, err
	}
	return entries, nil
}

// parentOf returns the parent directory, or "" for a filesystem root.
func parentOf(path string) string {
	parent := filepath.Dir(path)
	if parent == path {
		return ""
	}
	return parent
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
