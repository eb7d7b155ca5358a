package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"image-folder-picker/nodes"
	"image-folder-picker/scan"
	"image-folder-picker/thumbs"
)

var warmFlags struct {
	size    int
	workers int
}

var warmCmd = &cobra.Command{
	Use:   "warm <folder>",
	Short: "Regenerate the thumbnails of a folder ahead of browsing",
	Long: `Regenerates the thumbnail of every image directly inside folder, in parallel.
When a dimension index is configured, image dimensions are indexed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runWarm,
}

var promptJSON bool

var promptCmd = &cobra.Command{
	Use:   "prompt <file.png>",
	Short: "Print the generation prompt embedded in a PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result := nodes.ExtractPrompt(args[0])
		out := cmd.OutOrStdout()
		if promptJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		for _, line := range result.UI {
			fmt.Fprintln(out, line)
		}
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <folder> [image]",
	Short: "Run the picker node on a folder and describe its outputs",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLoad,
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the node definitions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		defer enc.Close()
		return enc.Encode(nodes.Definitions())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "imagefolderpicker version %s\n", version)
		fmt.Fprintf(out, "Build date: %s\n", buildDate)
		fmt.Fprintf(out, "Git commit: %s\n", gitCommit)
	},
}

func init() {
	warmCmd.Flags().IntVar(&warmFlags.size, "size", thumbs.DefaultSize, "Thumbnail size")
	warmCmd.Flags().IntVar(&warmFlags.workers, "workers", scan.DefaultConcurrency(), "Concurrent regenerations")
	promptCmd.Flags().BoolVar(&promptJSON, "json", false, "Print all outputs as JSON")
}

func runWarm(cmd *cobra.Command, args []string) error {
	folder, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	size := thumbs.ResolveSize(warmFlags.size)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spinner := scan.NewProgressSpinner(fmt.Sprintf("Thumbnails %dpx", size))
	result, err := thumbs.NewCache().Refresh(ctx, folder, size, warmFlags.workers, spinner)
	spinner.Stop()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Regenerated %s thumbnails, %s errors\n",
		humanize.Comma(int64(result.Regenerated)), humanize.Comma(int64(result.Errors)))

	if cfg.DBPath == "" {
		return nil
	}
	return warmIndex(ctx, cmd, folder)
}

// warmIndex probes every image of folder into the dimension index.
func warmIndex(ctx context.Context, cmd *cobra.Command, folder string) error {
	store, err := scan.OpenStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	names, err := scan.ImagesIn(folder)
	if err != nil {
		return err
	}

	spinner := scan.NewProgressSpinner("Dimensions")
	err = scan.Each(ctx, names, warmFlags.workers, spinner, func(_ context.Context, name string) error {
		path := filepath.Join(folder, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil
		}
		store.Dimensions(path, info)
		return nil
	})
	spinner.Stop()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Dimension index holds %s images\n", humanize.Comma(int64(store.Len())))
	return nil
}

type loadSummary struct {
	ImagePath  string `yaml:"image_path"`
	ImageCount int    `yaml:"image_count"`
	ImageShape []int  `yaml:"image_shape,flow"`
	MaskShape  []int  `yaml:"mask_shape,flow"`
	Masked     int    `yaml:"masked_pixels"`
	CacheKey   string `yaml:"cache_key"`
}

func runLoad(cmd *cobra.Command, args []string) error {
	folder := args[0]
	selected := ""
	if len(args) > 1 {
		selected = args[1]
	}

	if err := nodes.ValidateInputs(folder, selected); err != nil {
		return err
	}
	result, err := nodes.Load(folder, selected)
	if err != nil {
		return err
	}

	masked := 0
	for _, v := range result.Mask.Data {
		if v > 0 {
			masked++
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(loadSummary{
		ImagePath:  result.ImagePath,
		ImageCount: result.ImageCount,
		ImageShape: result.Image.Shape,
		MaskShape:  result.Mask.Shape,
		Masked:     masked,
		CacheKey:   nodes.IsChanged(folder, selected),
	})
}
