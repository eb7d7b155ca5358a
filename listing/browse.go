package listing

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"image-folder-picker/scan"
)

type BrowseFolder struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// BrowseResult is one step of the folder dialog. ImageCount is absent when
// listing drive roots.
type BrowseResult struct {
	Folders    []BrowseFolder `json:"folders"`
	Current    string         `json:"current"`
	Parent     string         `json:"parent"`
	ImageCount *int           `json:"image_count,omitempty"`
}

// Roots returns the top-level entries of the filesystem: existing drive
// letters on Windows, "/" elsewhere.
func Roots() []BrowseFolder {
	if runtime.GOOS != "windows" {
		return []BrowseFolder{{Name: "/", Path: "/", Type: "folder"}}
	}

	drives := []BrowseFolder{}
	for letter := 'A'; letter <= 'Z'; letter++ {
		drive := string(letter) + `:\`
		if _, err := os.Stat(drive); err == nil {
			drives = append(drives, BrowseFolder{Name: drive, Path: drive, Type: "drive"})
		}
	}
	return drives
}

// Browse lists the non-hidden subdirectories of path and counts the images
// directly inside it. An empty path lists the drives on Windows and browses
// "/" everywhere else.
func Browse(path string) (*BrowseResult, error) {
	if path == "" {
		if runtime.GOOS == "windows" {
			return &BrowseResult{Folders: Roots()}, nil
		}
		path = "/"
	}

	current, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	entries, err := readDir(current)
	if err != nil {
		return nil, err
	}

	folders := []BrowseFolder{}
	images := 0
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(current, name)

		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if !isHidden(name) {
				folders = append(folders, BrowseFolder{Name: name, Path: full, Type: "folder"})
			}
			continue
		}
		if scan.IsImage(name) {
			images++
		}
	}

	sort.Slice(folders, func(i, j int) bool {
		return lessFold(folders[i].Name, folders[j].Name)
	})

	return &BrowseResult{
		Folders:    folders,
		Current:    current,
		Parent:     parentOf(current),
		ImageCount: &images,
	}, nil
}
