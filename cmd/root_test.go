package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/annotscan/internal/models"
	"github.com/xhad/annotscan/internal/testpdf"
	cfgPkg "github.com/xhad/annotscan/pkg/config"
)

func testConfig(t *testing.T, files map[string][]byte) *cfgPkg.Config {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "Input")
	require.NoError(t, os.MkdirAll(input, 0o755))
	for name, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(input, name), data, 0o644))
	}

	config := &cfgPkg.Config{}
	config.Input.Folder = input
	config.Search.Term = "rue felix wodon"
	config.Output.BaseDir = filepath.Join(dir, "Output")
	config.Highlight.Color = []float64{1, 1, 0}
	config.Highlight.Opacity = 1
	return config
}

func TestRun(t *testing.T) {
	config := testConfig(t, map[string][]byte{
		"a.pdf":   testpdf.Simple("see Rue Felix Wodon"),
		"b.pdf":   testpdf.Simple("nothing here"),
		"bad.pdf": []byte("not a pdf"),
	})

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(config, &stdout, &stderr))

	outDir := filepath.Join(config.Output.BaseDir, "ruefelixwodon")
	assert.Contains(t, stdout.String(), "highlighted and saved to "+outDir)
	assert.Contains(t, stdout.String(), "- a.pdf\n")
	assert.NotContains(t, stdout.String(), "b.pdf")
	assert.Contains(t, stderr.String(), "bad.pdf")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.pdf", entries[0].Name())

	// the input folder is left alone
	original, err := os.ReadFile(filepath.Join(config.Input.Folder, "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, testpdf.Simple("see Rue Felix Wodon"), original)
}

func TestRunNoMatches(t *testing.T) {
	config := testConfig(t, map[string][]byte{
		"b.pdf": testpdf.Simple("nothing here"),
	})

	config.UI.Verbose = true

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(config, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "No PDFs found containing the search string.")
	assert.Contains(t, stderr.String(), "b.pdf")
}

func TestRunMissingFolder(t *testing.T) {
	config := testConfig(t, nil)
	config.Input.Folder = filepath.Join(t.TempDir(), "missing")

	var stdout, stderr bytes.Buffer
	err := run(config, &stdout, &stderr)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindInputFolderMissing))
	assert.Empty(t, stdout.String())

	_, statErr := os.Stat(config.Output.BaseDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestParseFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "annotscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  term: \"from file\"\n"), 0o644))

	for _, key := range []string{"ANNOTSCAN_INPUT", "ANNOTSCAN_OUTPUT", "ANNOTSCAN_TERM", "PORT"} {
		t.Setenv(key, "")
	}

	require.NoError(t, rootCmd.ParseFlags([]string{"--config", path, "--output", "out", "--no-progress", "-v"}))

	config, err := parseFlags(rootCmd, []string{"docs", "Rue Felix"})
	require.NoError(t, err)
	assert.Equal(t, "docs", config.Input.Folder)
	assert.Equal(t, "Rue Felix", config.Search.Term)
	assert.Equal(t, "out", config.Output.BaseDir)
	assert.False(t, config.UI.Progress)
	assert.True(t, config.UI.Verbose)

	_, err = parseFlags(rootCmd, []string{"docs", "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.term")
}
