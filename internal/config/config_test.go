package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into an empty directory so a developer's .env
// never leaks in.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, 5*time.Minute, cfg.RoundDuration)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.SweepConcurrency)
	assert.Equal(t, 3, cfg.IdeasPerRound)
	assert.Equal(t, 5, cfg.DefaultRoundCount)
	assert.Equal(t, 6, cfg.TeamSize)
	assert.True(t, cfg.AllowDevAuth)
	assert.Equal(t, "brainstorm:session:", cfg.RedisChannelPrefix)
}

func TestLoad_EnvOverridesAndDotenv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TEAM_SIZE=4\nREDIS_ADDR=localhost:6379\n"), 0o600))
	t.Cleanup(func() {
		// godotenv writes straight into the process environment
		os.Unsetenv("TEAM_SIZE")
		os.Unsetenv("REDIS_ADDR")
	})
	t.Setenv("ROUND_DURATION", "90s")
	t.Setenv("IDEAS_PER_ROUND", "2")
	t.Setenv("WS_ORIGIN_PATTERNS", "localhost:*,app.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.RoundDuration)
	assert.Equal(t, 2, cfg.IdeasPerRound)
	assert.Equal(t, 4, cfg.TeamSize)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, []string{"localhost:*", "app.example.com"}, cfg.WSOriginPatterns)
}

func TestLoad_BadValue(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SWEEP_INTERVAL", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	valid := Config{
		HTTPAddr:          ":8080",
		RoundDuration:     time.Minute,
		SweepInterval:     time.Second,
		SweepConcurrency:  1,
		IdeasPerRound:     3,
		DefaultRoundCount: 5,
		TeamSize:          6,
		AllowDevAuth:      true,
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(c *Config){
		"zero round duration":       func(c *Config) { c.RoundDuration = 0 },
		"sweep slower than a round": func(c *Config) { c.SweepInterval = 2 * time.Minute },
		"no concurrency":            func(c *Config) { c.SweepConcurrency = 0 },
		"no ideas":                  func(c *Config) { c.IdeasPerRound = 0 },
		"no rounds":                 func(c *Config) { c.DefaultRoundCount = -1 },
		"team of one":               func(c *Config) { c.TeamSize = 1 },
		"no auth at all":            func(c *Config) { c.AllowDevAuth = false },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
