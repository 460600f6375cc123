package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
	"github.com/stormpath/stormpath-migrate/migrators"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, stormpath.DefaultBaseURL, c.Source.URL)
	assert.Equal(t, stormpath.DefaultBaseURL, c.Destination.URL)
	assert.Equal(t, []string{migrators.DefaultAdminDirectory}, c.Skip.Directories)
	assert.Equal(t, []string{migrators.DefaultSystemApplication}, c.Skip.Applications)
	assert.Equal(t, migrators.DefaultRetryPolicy, c.RetryPolicy())

	from, err := c.FromDate()
	require.NoError(t, err)
	assert.True(t, from.IsZero())
}

func TestLoadFile(t *testing.T) {
	t.Setenv("TEST_DST_KEY", "dstid:dstsecret")
	path := writeFile(t, "migrate.yaml", `
source:
  url: https://source.example.com/v1
  api_key: srcid:srcsecret
destination:
  api_key: ${TEST_DST_KEY}
retry:
  max_attempts: 7
  max_delay: 5s
skip:
  directories: []
password_file: /tmp/passwords.jsonl
from: 2017-01-01
log:
  verbose: true
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://source.example.com/v1", c.Source.URL)
	assert.Equal(t, "srcid:srcsecret", c.Source.APIKey)
	assert.Equal(t, "dstid:dstsecret", c.Destination.APIKey)
	assert.Equal(t, stormpath.DefaultBaseURL, c.Destination.URL)
	assert.Empty(t, c.Skip.Directories)
	assert.Equal(t, []string{migrators.DefaultSystemApplication}, c.Skip.Applications)
	assert.Equal(t, "/tmp/passwords.jsonl", c.PasswordFile)
	assert.True(t, c.Log.Verbose)

	policy := c.RetryPolicy()
	assert.Equal(t, 7, policy.MaxAttempts)
	assert.Equal(t, 5*time.Second, policy.MaxDelay)
	assert.Equal(t, migrators.DefaultRetryPolicy.MinDelay, policy.MinDelay)

	from, err := c.FromDate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), from)
}

func TestLoadEmptyFile(t *testing.T) {
	c, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	for name, content := range map[string]string{
		"unknown field": "sources:\n  url: https://x\n",
		"bad date":      "from: 01/01/2017\n",
		"relative url":  "source:\n  url: /v1\n",
		"negative":      "retry:\n  max_attempts: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(SourceKeyEnv, "envsrc:secret")
	t.Setenv(DestinationKeyEnv, "envdst:secret")

	c := Default()
	c.Destination.APIKey = "file:secret"
	c.ApplyEnv()
	assert.Equal(t, "envsrc:secret", c.Source.APIKey)
	assert.Equal(t, "file:secret", c.Destination.APIKey)
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, "test.env", "STORMPATH_MIGRATE_TEST_VALUE=from-dotenv\n")
	t.Setenv("STORMPATH_MIGRATE_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("STORMPATH_MIGRATE_TEST_VALUE"))

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("STORMPATH_MIGRATE_TEST_VALUE"))

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestParseAPIKey(t *testing.T) {
	id, secret, err := ParseAPIKey("abc:def:ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "def:ghi", secret)

	for _, bad := range []string{"", "abc", ":def", "abc:"} {
		_, _, err := ParseAPIKey(bad)
		assert.Error(t, err, bad)
	}
}
