package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTuning(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeTuning(t, `
tick_rate_hz: 10
operators:
  alice:
    level: 4
    token: s3cret
`)
	tu, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, tu.TickRateHz)
	assert.Equal(t, "overworld", tu.WorldID)
	assert.Equal(t, []int{0, 64, 0}, tu.Spawn)
	assert.Equal(t, "OBSIDIAN", tu.StarterItem)
	assert.Equal(t, Operator{Level: 4, Token: "s3cret"}, tu.Operators["alice"])
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"tick rate":     "tick_rate_hz: 0\n",
		"spawn":         "spawn: [1, 2]\n",
		"default level": "default_permission_level: 7\n",
		"no token":      "operators:\n  bob:\n    level: 2\n",
		"yaml":          "tick_rate_hz: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeTuning(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	tu, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, Defaults(), tu)
}
