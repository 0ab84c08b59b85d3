package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = "../../internal/dataset/testdata/sample.json"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		cfgFile = ""
		inspectFormat = "text"
		renderIndex = -1
		renderName = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "btviz dev")
}

func TestInspect_Text(t *testing.T) {
	out, err := execute(t, "inspect", sampleFile)
	require.NoError(t, err)

	assert.Contains(t, out, "QQQ")
	assert.Contains(t, out, "2024-01-02 09:00 to 2024-01-02 13:00")
	assert.Contains(t, out, "2 (2 on chart)")
	assert.Contains(t, out, "$10,013.00")
	assert.Contains(t, out, "50.00% (1 won, 1 lost)")
}

func TestInspect_JSON(t *testing.T) {
	out, err := execute(t, "inspect", "--format", "json", sampleFile)
	require.NoError(t, err)

	var sum map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, "QQQ", sum["symbol"])
	assert.Equal(t, "1h", sum["timeframe"])
}

func TestInspect_YAML(t *testing.T) {
	out, err := execute(t, "inspect", "-f", "yaml", sampleFile)
	require.NoError(t, err)
	assert.Contains(t, out, "symbol: QQQ")
	assert.Contains(t, out, "total_trades: 2")
}

func TestInspect_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"symbol":"QQQ"}`), 0644))

	_, err := execute(t, "inspect", path)
	assert.Error(t, err)

	_, err = execute(t, "inspect", "--format", "xml", sampleFile)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("export:\n  type: localfs\n  path: "+filepath.Join(dir, "reports")+"\n"), 0644))

	out, err := execute(t, "render", "-c", cfgPath, "--index", "2", "--name", "nightly", sampleFile)
	require.NoError(t, err)
	assert.Contains(t, out, "QQQ/nightly/chart.html")

	_, err = os.Stat(filepath.Join(dir, "reports", "QQQ", "nightly", "metrics.json"))
	assert.NoError(t, err)
}

func TestServe_WatchNeedsDataset(t *testing.T) {
	_, err := execute(t, "serve", "--watch")
	assert.Error(t, err)
	serveWatch = false
}
