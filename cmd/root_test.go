// File: cmd/root_test.go
package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(context.Background(), "--version")

	require.NoError(t, err)
	assert.Contains(t, out, "iconfetch version "+Version)
}

func TestRootCmd_Help(t *testing.T) {
	out, err := executeCommand(context.Background(), "--help")

	require.NoError(t, err)
	assert.Contains(t, out, "fetch")
	assert.Contains(t, out, "list")
	assert.Contains(t, out, "--config")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := executeCommand(context.Background(), "scrape")
	assert.Error(t, err)
}

func TestRootCmd_InvalidConfigRejected(t *testing.T) {
	_, err := executeCommand(context.Background(), "list", "--base-url", "ftp://example.org/images/")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load or validate config")
	assert.Contains(t, err.Error(), "base_url")
}

func TestRootCmd_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iconfetch.yaml")
	yaml := `
fetch:
  base_url: https://wiki.example.org/files/
  file_pattern: "{name}.png"
  names:
    - Cooking
    - Fishing
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	out, err := executeCommand(context.Background(), "list", "-c", path)

	require.NoError(t, err)
	assert.Equal(t,
		"Cooking\thttps://wiki.example.org/files/Cooking.png\n"+
			"Fishing\thttps://wiki.example.org/files/Fishing.png\n",
		out)
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	_, err := executeCommand(context.Background(), "list", "-c", filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestRootCmd_EnvOverride(t *testing.T) {
	t.Setenv("ICONFETCH_FETCH_FILE_PATTERN", "{name}_skill.png")

	out, err := executeCommand(context.Background(), "list", "Attack")

	require.NoError(t, err)
	assert.Contains(t, out, "Attack_skill.png")
}

func TestRootCmd_EnvNames(t *testing.T) {
	t.Setenv("ICONFETCH_FETCH_NAMES", "Attack,Magic")

	out, err := executeCommand(context.Background(), "list")

	require.NoError(t, err)
	assert.Equal(t,
		"Attack\thttps://oldschool.runescape.wiki/images/Attack_icon.png\n"+
			"Magic\thttps://oldschool.runescape.wiki/images/Magic_icon.png\n",
		out)
}

func TestRootCmd_FlagBeatsEnv(t *testing.T) {
	t.Setenv("ICONFETCH_FETCH_FILE_PATTERN", "{name}_skill.png")

	out, err := executeCommand(context.Background(), "list", "--pattern", "{name}_large.png", "Attack")

	require.NoError(t, err)
	assert.Contains(t, out, "Attack_large.png")
}
