// Package server exposes the picker over HTTP: folder listings, thumbnails,
// the folder dialog, folder watches and their websocket push channel.
package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"image-folder-picker/config"
	"image-folder-picker/push"
	"image-folder-picker/scan"
	"image-folder-picker/thumbs"
	"image-folder-picker/watch"
)

// Prefix is the route prefix of every picker endpoint.
const Prefix = "/imagefolderpicker"

// Deps are the long-lived components the routes dispatch to. Prober may be
// nil to probe dimensions directly.
type Deps struct {
	Watcher *watch.Manager
	Hub     *push.Hub
	Prober  scan.Prober
}

type Server struct {
	cfg     config.Config
	app     *fiber.App
	thumbs  *thumbs.Cache
	watcher *watch.Manager
	hub     *push.Hub
	prober  scan.Prober

	// moves tracks uploads being moved into place so shutdown can wait.
	moves sync.WaitGroup
	done  chan struct{}
	once  sync.Once
}

// New builds the fiber app and registers every route.
func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Watcher == nil || deps.Hub == nil {
		return nil, errors.New("server needs a watcher and a push hub")
	}

	s := &Server{
		cfg:     cfg,
		thumbs:  thumbs.NewCache(),
		watcher: deps.Watcher,
		hub:     deps.Hub,
		prober:  deps.Prober,
		done:    make(chan struct{}),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "imagefolderpicker",
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	s.app.Use(cors.New())

	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group(Prefix)
	api.Get("/list", s.handleList)
	api.Get("/thumbnail", s.handleThumbnail)
	api.Post("/refresh", s.handleRefresh)
	api.Get("/browse", s.handleBrowse)
	api.Post("/watch", s.handleWatch)
	api.Post("/unwatch", s.handleUnwatch)
	api.Get("/watched", s.handleWatched)
	api.Post("/pause", s.handlePause)
	api.Post("/resume", s.handleResume)

	api.Use("/ws", push.Upgrade)
	api.Get("/ws", s.hub.Handler())

	if err := s.setupUpload(api); err != nil {
		return nil, err
	}

	if cfg.StaticDir != "" {
		s.app.Static("/", cfg.StaticDir)
	}

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until Shutdown.
func (s *Server) Listen() error {
	log.Printf("Server starting on %s", s.cfg.Addr())
	return s.app.Listen(s.cfg.Addr())
}

// Shutdown stops accepting requests, waits for in-flight upload moves and
// stops the watcher and push hub.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		err = s.app.ShutdownWithContext(ctx)
		close(s.done)

		log.Println("Waiting for in-progress uploads...")
		s.moves.Wait()

		s.watcher.Shutdown()
		s.hub.Close()
	})
	return err
}
