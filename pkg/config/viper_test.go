package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitViperReadsExplicitFile(t *testing.T) {
	t.Parallel()

	// Arrange
	path := filepath.Join(t.TempDir(), "audit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  max_pages: 7\n"), 0o600))

	// Act
	v, used, err := InitViper(path)

	// Assert
	require.NoError(t, err)
	require.Equal(t, path, used)
	require.Equal(t, 7, v.GetInt("crawler.max_pages"))
}

func TestInitViperRejectsMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, _, err := InitViper(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestInitViperRejectsMalformedExplicitFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler: [unterminated\n"), 0o600))

	_, _, err := InitViper(path)
	require.ErrorContains(t, err, "read config")
}
