package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/otiai10/copy"
	"github.com/tus/tusd/pkg/filestore"
	"github.com/tus/tusd/pkg/handler"

	"image-folder-picker/scan"
)

const uploadPath = Prefix + "/upload/"

// move copies src to dst and removes src once the copy succeeded.
func move(src, dst string) error {
	if err := copy.Copy(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// UploadLogEntry is one line of the uploads audit log.
type UploadLogEntry struct {
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Dest      string `json:"dest,omitempty"`
	Error     string `json:"error,omitempty"`
}

// logUpload appends entry to modifications.jsonl in the uploads directory.
// The file is only ever appended to.
func (s *Server) logUpload(entry UploadLogEntry) {
	logFilePath := filepath.Join(s.cfg.UploadsDir, "modifications.jsonl")

	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("Failed to open modification log: %v", err)
		return
	}
	defer f.Close()

	entry.Timestamp = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal log entry: %v", err)
		return
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("Failed to write log entry: %v", err)
	}
}

// setupUpload mounts a tus endpoint that drops finished uploads into the
// folder named by the upload metadata. Uploads exist only in write mode.
func (s *Server) setupUpload(api fiber.Router) error {
	if !s.cfg.Write {
		log.Println("Upload disabled: not in write mode")
		return nil
	}

	if err := os.MkdirAll(s.cfg.UploadsDir, 0755); err != nil {
		return fmt.Errorf("failed to create uploads directory: %w", err)
	}

	store := filestore.New(s.cfg.UploadsDir)
	composer := handler.NewStoreComposer()
	store.UseIn(composer)

	tusHandler, err := handler.NewHandler(handler.Config{
		StoreComposer:         composer,
		NotifyCompleteUploads: true,
		BasePath:              uploadPath,
	})
	if err != nil {
		return fmt.Errorf("unable to create tus handler: %w", err)
	}
	log.Println("TUS upload handler initialized successfully")

	go func() {
		for {
			select {
			case event := <-tusHandler.CompleteUploads:
				s.moves.Add(1)
				dest, err := s.completeUpload(event.Upload)
				entry := UploadLogEntry{ID: event.Upload.ID, Dest: dest}
				if err != nil {
					log.Printf("Upload %s not placed: %v", event.Upload.ID, err)
					entry.Error = err.Error()
				}
				s.logUpload(entry)
				s.moves.Done()
			case <-s.done:
				return
			}
		}
	}()

	group := api.Group("/upload", adaptor.HTTPMiddleware(tusHandler.Middleware))
	group.Post("/", adaptor.HTTPHandlerFunc(tusHandler.PostFile))
	group.Head("/:id", adaptor.HTTPHandlerFunc(tusHandler.HeadFile))
	group.Patch("/:id", adaptor.HTTPHandlerFunc(tusHandler.PatchFile))
	group.Get("/:id", adaptor.HTTPHandlerFunc(tusHandler.GetFile))
	group.Delete("/:id", adaptor.HTTPHandlerFunc(tusHandler.DelFile))
	return nil
}

// completeUpload moves a finished upload to metadata folder/filename. Only
// image files are accepted and existing files are never replaced.
func (s *Server) completeUpload(info handler.FileInfo) (string, error) {
	tempFile := filepath.Join(s.cfg.UploadsDir, info.ID)
	defer os.Remove(tempFile + ".info")

	folder := info.MetaData["folder"]
	filename := filepath.Base(info.MetaData["filename"])

	if folder == "" || !isDir(folder) {
		os.Remove(tempFile)
		return "", fmt.Errorf("invalid folder %q", folder)
	}
	if !scan.IsImage(filename) {
		os.Remove(tempFile)
		return "", fmt.Errorf("not an image: %q", filename)
	}

	finalPath := filepath.Join(folder, filename)
	if _, err := os.Stat(finalPath); err == nil {
		os.Remove(tempFile)
		return "", fmt.Errorf("%s already exists", finalPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	log.Printf("Moving from %s to %s", tempFile, finalPath)
	if err := move(tempFile, finalPath); err != nil {
		return "", err
	}
	log.Printf("Successfully moved uploaded file to %s", finalPath)
	return finalPath, nil
}
