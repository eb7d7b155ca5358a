package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"image-folder-picker/config"
	"image-folder-picker/nodes"
	"image-folder-picker/thumbs"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := run(t, "version")
	assert.Contains(t, out, "imagefolderpicker version dev")
	assert.Contains(t, out, "Git commit: unknown")
}

func TestNodesCommand(t *testing.T) {
	var defs []nodes.Definition
	require.NoError(t, yaml.Unmarshal([]byte(run(t, "nodes")), &defs))
	require.Len(t, defs, 4)
	assert.Equal(t, "ImageFolderPicker", defs[0].Class)
}

func TestLoadCommand(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 5, 3))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), buf.Bytes(), 0644))

	var summary loadSummary
	require.NoError(t, yaml.Unmarshal([]byte(run(t, "load", dir, "a.png")), &summary))
	assert.Equal(t, filepath.Join(dir, "a.png"), summary.ImagePath)
	assert.Equal(t, 1, summary.ImageCount)
	assert.Equal(t, []int{1, 3, 5, 3}, summary.ImageShape)
	assert.Equal(t, 15, summary.Masked)

	rootCmd.SetArgs([]string{"load", dir, "gone.png"})
	assert.Error(t, rootCmd.Execute())
}

func TestWarmCommand(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 20, 10))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), buf.Bytes(), 0644))

	out := run(t, "warm", dir, "--size", "256", "--workers", "2")
	assert.Contains(t, out, "Regenerated 1 thumbnails, 0 errors")
	assert.FileExists(t, thumbs.CachePath(dir, "a.png", 256))
}

func TestApplyServeFlags(t *testing.T) {
	cfg = config.Default()
	require.NoError(t, serveCmd.Flags().Parse([]string{"--port", "9001", "--write", "--no-watch"}))
	applyServeFlags(serveCmd)

	assert.Equal(t, "9001", cfg.Port)
	assert.True(t, cfg.Write)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Host)
}
