package event

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xinggaoya/websess/internal/config"
)

func TestInitHonorsMetricsOptOut(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("WEBSESS_DATA_DIR", filepath.Join(t.TempDir(), "data"))

	t.Run("before configuration", func(t *testing.T) {
		Init()
		require.Nil(t, client)
	})

	t.Run("metrics disabled", func(t *testing.T) {
		t.Setenv("WEBSESS_DISABLE_METRICS", "true")
		_, err := config.Init("", false)
		require.NoError(t, err)

		Init()
		require.Nil(t, client)
	})
}
