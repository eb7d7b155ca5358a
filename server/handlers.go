package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"image-folder-picker/listing"
	"image-folder-picker/thumbs"
)

func (s *Server) handleList(c *fiber.Ctx) error {
	folder := c.Query("folder")
	if folder == "" {
		return fiber.NewError(fiber.StatusBadRequest, "No folder specified")
	}

	result, err := listing.List(folder, c.Query("sort", listing.SortName), s.prober)
	switch {
	case errors.Is(err, listing.ErrNotFound):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid folder path")
	case errors.Is(err, listing.ErrPermission):
		return fiber.NewError(fiber.StatusForbidden, "Permission denied")
	case err != nil:
		return err
	}
	return c.JSON(result)
}

func (s *Server) handleThumbnail(c *fiber.Ctx) error {
	folder := c.Query("folder")
	filename := c.Query("filename")
	size := thumbs.ParseSize(c.Query("size", "128"))

	if folder == "" || filename == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing folder or filename")
	}

	root, name, err := resolveInside(folder, filename)
	if err != nil {
		return pathError(err)
	}

	data, err := s.thumbs.Get(root, name, size)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(data)
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	folder, err := parseFolder(c)
	if err != nil {
		return err
	}
	if folder == "" || !isDir(folder) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid folder")
	}

	result, err := s.thumbs.Refresh(c.UserContext(), folder, thumbs.DefaultSize, s.cfg.RefreshWorkers, nil)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) handleBrowse(c *fiber.Ctx) error {
	result, err := listing.Browse(c.Query("path"))
	switch {
	case errors.Is(err, listing.ErrNotFound):
		return fiber.NewError(fiber.StatusBadRequest, "Invalid path")
	case errors.Is(err, listing.ErrPermission):
		return fiber.NewError(fiber.StatusForbidden, "Permission denied")
	case err != nil:
		return err
	}
	return c.JSON(result)
}
