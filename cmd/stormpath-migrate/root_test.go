package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
)

// emptyTenant serves a source tenant without any resources.
func emptyTenant(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/tenants/current" {
			base := srv.URL + "/v1/tenants/t"
			_ = json.NewEncoder(w).Encode(stormpath.Tenant{
				Href:          base,
				Name:          "empty",
				Directories:   &stormpath.Link{Href: base + "/directories"},
				Applications:  &stormpath.Link{Href: base + "/applications"},
				Organizations: &stormpath.Link{Href: base + "/organizations"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"size": 0, "items": []interface{}{}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDryRun(t *testing.T) {
	srv := emptyTenant(t)
	dir := t.TempDir()
	mapping := filepath.Join(dir, "mapping.csv")
	metrics := filepath.Join(dir, "metrics.prom")

	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"srcid:srcsecret", "dstid:dstsecret",
		"--src-url", srv.URL + "/v1",
		"--dry-run",
		"--mapping-output", mapping,
		"--metrics-file", metrics,
	})
	require.NoError(t, cmd.Execute())

	b, err := os.ReadFile(mapping)
	require.NoError(t, err)
	assert.Equal(t, "original_href,migrated_href\n", string(b))
	_, err = os.Stat(metrics)
	assert.NoError(t, err)
}

func TestRejectsBadCredentials(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"nocolon", "dstid:dstsecret", "--src-url", "http://127.0.0.1:1/v1", "--dry-run"})
	assert.Error(t, cmd.Execute())
}

func TestRejectsBadFromDate(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"a:b", "c:d", "--from", "yesterday"})
	assert.ErrorContains(t, cmd.Execute(), "YYYY-MM-DD")
}

func TestTooManyArguments(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"a:b", "c:d", "passwords.jsonl", "extra"})
	assert.Error(t, cmd.Execute())
}
