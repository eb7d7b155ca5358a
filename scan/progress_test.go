package scan

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressSpinnerSummary(t *testing.T) {
	var out bytes.Buffer
	spinner := newProgressSpinner("Generating thumbnails", &out)

	err := Each(context.Background(), []string{"a", "b", "c"}, 1, spinner, func(context.Context, string) error {
		return nil
	})
	require.NoError(t, err)
	spinner.Stop()

	assert.Equal(t, int64(3), spinner.Processed())
	assert.Contains(t, out.String(), "✓ Generating thumbnails: 3 images")
}
