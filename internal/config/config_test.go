package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, "chrome", cfg.Variant.Name)
	assert.False(t, cfg.Variant.IsFirefox())
	assert.False(t, cfg.Variant.AllowPrivateReplace)

	assert.Equal(t, 10*time.Second, cfg.Cache.BypassTTL)
	assert.Equal(t, 3*time.Second, cfg.Cache.CodeTTL)
	assert.False(t, cfg.CDP.Enabled)
}

func TestExtensionURLs(t *testing.T) {
	ext := ExtensionConfig{
		Root:        "chrome-extension://abc/",
		OptionsPage: "/options/index.html",
		ConfirmPage: "confirm/index.html",
	}

	assert.Equal(t, "chrome-extension://abc/options/index.html", ext.OptionsURL())
	assert.Equal(t, "chrome-extension://abc/confirm/index.html#", ext.ConfirmURLBase())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"LOG_LEVEL":               "debug",
		"BROWSER":                 "firefox",
		"BROWSER_VERSION":         "87",
		"BROWSER_PRIVATE_REPLACE": "true",
		"CACHE_BYPASS_TTL":        "4s",
		"CDP_ENABLED":             "true",
	}

	for key, value := range envVars {
		require.NoError(t, os.Setenv(key, value))
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Variant.IsFirefox())
	assert.Equal(t, 87, cfg.Variant.Version)
	assert.True(t, cfg.Variant.AllowPrivateReplace)
	assert.Equal(t, 4*time.Second, cfg.Cache.BypassTTL)
	assert.True(t, cfg.CDP.Enabled)

	// untouched values keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Cache.AutocloseTTL)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadInvalidValue(t *testing.T) {
	require.NoError(t, os.Setenv("CACHE_SWEEP", "soon"))
	defer os.Unsetenv("CACHE_SWEEP")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, time.Second, cfg.Cache.Sweep)
}
