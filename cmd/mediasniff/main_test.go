package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	configPath, logLevel = "", ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestClassifyCommand(t *testing.T) {
	out := run(t, "classify", "https://r1---sn-a.googlevideo.com/videoplayback?id=abc&itag=251&range=0-10&x=1")

	assert.Equal(t, "abc_audio_251", gjson.Get(out, "key").String())
	assert.True(t, gjson.Get(out, "media").Bool())
	assert.Equal(t, "0-10", gjson.Get(out, "range").String())
	assert.Equal(t, "https://r1---sn-a.googlevideo.com/videoplayback?id=abc&itag=251", gjson.Get(out, "canonicalUrl").String())
}

func TestSettingsCommands(t *testing.T) {
	t.Setenv("MEDIASNIFF_DB_PATH", filepath.Join(t.TempDir(), "data.db"))

	assert.Contains(t, run(t, "settings", "set", "--aria2-url", "http://127.0.0.1:6800/jsonrpc", "--aria2-token", "tk"), "settings saved")
	run(t, "settings", "set", "--aria2-token", "tk2")

	out := run(t, "settings", "get")
	assert.Equal(t, "http://127.0.0.1:6800/jsonrpc", gjson.Get(out, "aria2Url").String())
	assert.Equal(t, "tk2", gjson.Get(out, "aria2Token").String())

	out = run(t, "settings", "get", "--all")
	assert.Equal(t, "http://127.0.0.1:6800/jsonrpc", gjson.Get(out, "aria2Url").String())
	assert.Equal(t, "tk2", gjson.Get(out, "aria2Token").String())
}

func TestClassifyCommand_RequiresArg(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"classify"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}
