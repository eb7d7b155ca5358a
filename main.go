package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"image-folder-picker/config"
	"image-folder-picker/push"
	"image-folder-picker/scan"
	"image-folder-picker/server"
	"image-folder-picker/watch"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

var (
	configPath string
	cfg        config.Config
	logFile    io.Closer
)

var rootCmd = &cobra.Command{
	Use:          "imagefolderpicker",
	Short:        "Browse image folders, serve cached thumbnails and push folder changes",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return setupLogging(cfg.LogFile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

var serveFlags struct {
	host           string
	port           string
	db             string
	write          bool
	uploads        string
	static         string
	refreshWorkers int
	noWatch        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	f := serveCmd.Flags()
	f.StringVar(&serveFlags.host, "host", "", "Host to listen on")
	f.StringVar(&serveFlags.port, "port", "", "Port to listen on")
	f.StringVar(&serveFlags.db, "db", "", "Dimension index database (bbolt)")
	f.BoolVar(&serveFlags.write, "write", false, "Enable write mode (allows uploads)")
	f.StringVar(&serveFlags.uploads, "uploads", "", "Directory for in-progress uploads")
	f.StringVar(&serveFlags.static, "static", "", "Directory of front-end files served at /")
	f.IntVar(&serveFlags.refreshWorkers, "refresh-workers", 0, "Concurrent thumbnail regenerations per refresh")
	f.BoolVar(&serveFlags.noWatch, "no-watch", false, "Disable folder change notifications")

	rootCmd.AddCommand(serveCmd, warmCmd, promptCmd, loadCmd, nodesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging prefixes every log line and, when path is set, sends the log
// to that file instead of stderr.
func setupLogging(path string) error {
	log.SetPrefix("[ImageFolderPicker] ")
	if path == "" {
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	logFile = f
	log.Printf("--- Log started at %s ---", time.Now().Format(time.RFC3339))
	return nil
}

// applyServeFlags overrides the loaded config with the flags actually given.
func applyServeFlags(cmd *cobra.Command) {
	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Host = serveFlags.host
	}
	if changed("port") {
		cfg.Port = serveFlags.port
	}
	if changed("db") {
		cfg.DBPath = serveFlags.db
	}
	if changed("write") {
		cfg.Write = serveFlags.write
	}
	if changed("uploads") {
		cfg.UploadsDir = serveFlags.uploads
	}
	if changed("static") {
		cfg.StaticDir = serveFlags.static
	}
	if changed("refresh-workers") {
		cfg.RefreshWorkers = serveFlags.refreshWorkers
	}
	if changed("no-watch") {
		cfg.Watch.Enabled = !serveFlags.noWatch
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	applyServeFlags(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	var prober scan.Prober
	if cfg.DBPath != "" {
		store, err := scan.OpenStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Printf("Dimension index: %s (%d entries)", cfg.DBPath, store.Len())
		prober = store
	}

	hub := push.NewHub()
	go hub.Run()

	var capability watch.Capability = watch.Noop{}
	if cfg.Watch.Enabled {
		capability = watch.NewCapability()
	} else {
		log.Println("Folder watching disabled")
	}
	manager := watch.New(capability, hub, watch.Options{
		EventDebounce:   cfg.Watch.Debounce,
		FlushDelay:      cfg.Watch.FlushDelay,
		ShutdownTimeout: cfg.Watch.ShutdownTimeout,
	})

	srv, err := server.New(cfg, server.Deps{Watcher: manager, Hub: hub, Prober: prober})
	if err != nil {
		manager.Shutdown()
		hub.Close()
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Listen()
	}()

	select {
	case <-sigChan:
		log.Println("Received interrupt signal, shutting down...")
	case err := <-errChan:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
	return nil
}
