package server

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleWatch(c *fiber.Ctx) error {
	folder, err := parseFolder(c)
	if err != nil {
		return err
	}
	if folder == "" || !isDir(folder) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid folder")
	}

	status := "unavailable"
	if s.watcher.Watch(folder) {
		status = "watching"
	}
	return c.JSON(fiber.Map{"status": status, "folder": folder})
}

func (s *Server) handleUnwatch(c *fiber.Ctx) error {
	folder, err := parseFolder(c)
	if err != nil {
		return err
	}
	if folder == "" {
		return fiber.NewError(fiber.StatusBadRequest, "No folder specified")
	}

	status := "unwatched"
	if s.watcher.Unwatch(folder) {
		status = "still_watching"
	}
	return c.JSON(fiber.Map{"status": status, "folder": folder})
}

func (s *Server) handleWatched(c *fiber.Ctx) error {
	folders := s.watcher.Watched()
	resp := fiber.Map{"folders": folders, "count": len(folders)}
	if !s.watcher.Available() {
		resp["status"] = "unavailable"
	}
	return c.JSON(resp)
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.watcher.Pause()
	return c.JSON(fiber.Map{"status": "paused"})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	s.watcher.Resume()
	return c.JSON(fiber.Map{"status": "resumed"})
}
