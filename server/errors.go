package server

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrOutsideFolder = errors.New("path escapes folder")
	ErrImageNotFound = errors.New("image not found")
)

// errorHandler renders every error as {"error": msg}. Errors that are not
// *fiber.Error are internal.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		log.Printf("Error: %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

type folderRequest struct {
	Folder string `json:"folder"`
}

// parseFolder reads {"folder": ...} from the body regardless of content type.
func parseFolder(c *fiber.Ctx) (string, error) {
	var req folderRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return "", fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	return req.Folder, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// within reports whether path is strictly below root. The separator is
// appended so /data/img does not contain /data/images.
func within(root, path string) bool {
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}

// resolveInside joins filename onto folder and checks the result stays
// inside folder, first lexically and then with symlinks resolved. It
// returns the absolute folder and the cleaned relative name.
func resolveInside(folder, filename string) (string, string, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return "", "", err
	}

	target := filepath.Join(root, filename)
	if !within(root, target) {
		return "", "", ErrOutsideFolder
	}
	if _, err := os.Stat(target); err != nil {
		return "", "", ErrImageNotFound
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", "", ErrImageNotFound
	}
	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		return "", "", ErrImageNotFound
	}
	if !within(realRoot, realTarget) {
		return "", "", ErrOutsideFolder
	}

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", "", ErrOutsideFolder
	}
	return root, rel, nil
}

// pathError maps resolveInside failures to HTTP errors.
func pathError(err error) error {
	switch {
	case errors.Is(err, ErrOutsideFolder):
		return fiber.NewError(fiber.StatusForbidden, "Invalid path")
	case errors.Is(err, ErrImageNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Image not found")
	default:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
}
