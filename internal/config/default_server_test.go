package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultServerStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", defaultServerFile)
	store := NewDefaultServerStore(path)

	_, err := store.Load()
	assert.True(t, errors.Is(err, ErrNoDefaultServer))

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(t, store.Save(DefaultServer{
		Name:    "jira",
		Command: "/opt/servers/jira.jar",
		Args:    []string{"--port", "0"},
	}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	ds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "jira", ds.Name)
	assert.Equal(t, "/opt/servers/jira.jar", ds.Command)
	assert.Equal(t, []string{"--port", "0"}, ds.Args)
	assert.True(t, ds.SavedAt.After(before))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	existed, err := store.Remove()
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Remove()
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestDefaultServerStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), defaultServerFile)
	store := NewDefaultServerStore(path)
	require.NoError(t, store.Save(DefaultServer{Name: "fs", Command: "npx"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "fs", raw["name"])
	assert.Equal(t, "npx", raw["command"])
	assert.Contains(t, raw, "savedAt")
	assert.NotContains(t, raw, "args")
}

func TestDefaultServerStore_Invalid(t *testing.T) {
	dir := t.TempDir()
	store := NewDefaultServerStore(filepath.Join(dir, defaultServerFile))

	assert.Error(t, store.Save(DefaultServer{Name: "", Command: "x"}))
	assert.Error(t, store.Save(DefaultServer{Name: "x", Command: " "}))

	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))
	_, err := store.Load()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoDefaultServer))

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"name":"x"}`), 0600))
	_, err = store.Load()
	assert.Error(t, err)
}

func TestExpandLaunch(t *testing.T) {
	cmd, args := ExpandLaunch("/srv/mcp/Server.JAR", []string{"--x"})
	assert.Equal(t, "java", cmd)
	assert.Equal(t, []string{
		"-Dlogging.level.root=OFF",
		"-Dspring.main.banner-mode=off",
		"-Dspring.main.log-startup-info=false",
		"-jar", "/srv/mcp/Server.JAR", "--x",
	}, args)

	cmd, args = ExpandLaunch("npx", []string{"-y", "server.jar"})
	assert.Equal(t, "npx", cmd)
	assert.Equal(t, []string{"-y", "server.jar"}, args)

	cmd, _ = ExpandLaunch("/opt/my.jar.d/run", nil)
	assert.Equal(t, "/opt/my.jar.d/run", cmd)
}

func TestLaunchLine(t *testing.T) {
	assert.Equal(t, "npx -y @scope/server", LaunchLine("npx", []string{"-y", "@scope/server"}))
	assert.Equal(t, "python 'my server.py' ''", LaunchLine("python", []string{"my server.py", ""}))
}

func TestGenerateConfig(t *testing.T) {
	ds := DefaultServer{Name: "jira", Command: "/srv/jira.jar", Args: []string{"--verbose"}}
	want := ClientConfig{MCPServers: map[string]ServerEntry{
		"jira": {
			Command: "java",
			Args: []string{
				"-Dlogging.level.root=OFF",
				"-Dspring.main.banner-mode=off",
				"-Dspring.main.log-startup-info=false",
				"-jar", "/srv/jira.jar", "--verbose",
			},
		},
	}}

	t.Run("json", func(t *testing.T) {
		data, err := GenerateConfig(ds, "json")
		require.NoError(t, err)
		var got ClientConfig
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, want, got)
		assert.Contains(t, string(data), `"mcpServers"`)
	})

	t.Run("yaml", func(t *testing.T) {
		data, err := GenerateConfig(ds, "YAML")
		require.NoError(t, err)
		var got ClientConfig
		require.NoError(t, yaml.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	})

	t.Run("toml", func(t *testing.T) {
		data, err := GenerateConfig(ds, "toml")
		require.NoError(t, err)
		var got ClientConfig
		require.NoError(t, toml.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := GenerateConfig(ds, "ini")
		require.Error(t, err)
		assert.Contains(t, errors.FlattenHints(err), "json, yaml and toml")
	})
}
