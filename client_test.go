package stormpath

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/v1")
	require.NoError(t, err)
	c, err := Open(*u, WithAPIKey("id", "secret"), WithUserAgent("migrate-test"))
	require.NoError(t, err)
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListDirectoriesPaging(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tenants/current", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "migrate-test", r.UserAgent())
		writeJSON(w, http.StatusOK, Tenant{
			Href:        srvURL + "/v1/tenants/t1",
			Directories: &Link{Href: srvURL + "/v1/tenants/t1/directories"},
		})
	})
	mux.HandleFunc("/v1/tenants/t1/directories", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "provider", r.URL.Query().Get("expand"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		total := pageSize + 1
		var items []Directory
		for i := offset; i < total && len(items) < pageSize; i++ {
			items = append(items, Directory{Href: fmt.Sprintf("%s/v1/directories/%d", srvURL, i), Name: fmt.Sprintf("dir-%d", i)})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"offset": offset, "limit": pageSize, "size": total, "items": items})
	})
	c, srv := openTestClient(t, mux)
	srvURL = srv.URL

	dirs, err := c.ListDirectories(context.Background())
	require.NoError(t, err)
	require.Len(t, dirs, pageSize+1)
	assert.Equal(t, "dir-0", dirs[0].Name)
	assert.Equal(t, fmt.Sprintf("dir-%d", pageSize), dirs[pageSize].Name)
}

func TestGetDirectoryNotFound(t *testing.T) {
	c, srv := openTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"status": 404, "code": 404, "message": "not found"})
	}))

	dir, err := c.GetDirectory(context.Background(), srv.URL+"/v1/directories/missing")
	require.NoError(t, err)
	assert.Nil(t, dir)
}

func TestErrorClassification(t *testing.T) {
	status := http.StatusServiceUnavailable
	c, srv := openTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]interface{}{
			"status":           status,
			"code":             2001,
			"message":          "Directory name exists.",
			"developerMessage": "A directory with that name already exists.",
		})
	}))
	ctx := context.Background()

	_, err := c.GetGroup(ctx, srv.URL+"/v1/groups/g")
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	status = http.StatusTooManyRequests
	_, err = c.GetGroup(ctx, srv.URL+"/v1/groups/g")
	assert.True(t, IsTransient(err))

	status = http.StatusConflict
	_, err = c.CreateDirectory(ctx, &Directory{Name: "Eng"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 2001, apiErr.Code)
	assert.Equal(t, http.MethodPost, apiErr.Method)
	assert.Contains(t, err.Error(), "A directory with that name already exists.")
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()
	c, err := Open(*u)
	require.NoError(t, err)

	_, err = c.CurrentTenant(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCancelledRequestIsNotTransient(t *testing.T) {
	c, srv := openTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Group{})
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetGroup(ctx, srv.URL+"/v1/groups/g")
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateAccountOptions(t *testing.T) {
	c, srv := openTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/directories/d/accounts", r.URL.Path)
		assert.Equal(t, "mcf", r.URL.Query().Get("passwordFormat"))
		assert.Equal(t, "false", r.URL.Query().Get("registrationWorkflowEnabled"))

		var body Account
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "$2a$10$hash", body.Password)
		body.Href = "https://api.test/v1/accounts/a"
		body.Password = ""
		writeJSON(w, http.StatusCreated, body)
	}))

	disabled := false
	out, err := c.CreateAccount(context.Background(), srv.URL+"/v1/directories/d", &Account{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "$2a$10$hash",
	}, CreateAccountOptions{PasswordFormat: "mcf", RegistrationWorkflowEnabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, "https://api.test/v1/accounts/a", out.Href)
}

func TestAccountStoreMappingDecoding(t *testing.T) {
	var m AccountStoreMapping
	require.NoError(t, json.Unmarshal([]byte(`{
		"href": "https://api.test/v1/accountStoreMappings/m",
		"application": {"href": "https://api.test/v1/applications/a"},
		"accountStore": {"href": "https://api.test/v1/groups/g"},
		"listIndex": 2,
		"isDefaultAccountStore": true
	}`), &m))
	assert.Equal(t, StoreGroup, m.AccountStore.Kind)
	assert.Equal(t, "https://api.test/v1/applications/a", m.Parent())
	assert.Equal(t, 2, m.ListIndex)

	b, err := json.Marshal(m.AccountStore)
	require.NoError(t, err)
	assert.JSONEq(t, `{"href": "https://api.test/v1/groups/g"}`, string(b))

	assert.Equal(t, StoreDirectory, StoreKindOf("https://api.test/v1/directories/d"))
	assert.Equal(t, StoreOrganization, StoreKindOf("https://api.test/v1/organizations/o"))
	assert.Equal(t, StoreUnknown, StoreKindOf("https://api.test/v1/agents/x"))
}

func TestCustomData(t *testing.T) {
	deleted := ""
	c, srv := openTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]interface{}{"href": r.URL.String(), "theme": "dark"})
		case http.MethodDelete:
			deleted = r.URL.EscapedPath()
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"status": 404})
		}
	}))
	ctx := context.Background()

	data, err := c.GetCustomData(ctx, srv.URL+"/v1/accounts/a")
	require.NoError(t, err)
	assert.Equal(t, "dark", data["theme"])

	require.NoError(t, c.DeleteCustomDataField(ctx, srv.URL+"/v1/accounts/a", "https://api.test/v1/directories/d"))
	assert.Equal(t, "/v1/accounts/a/customData/https:%2F%2Fapi.test%2Fv1%2Fdirectories%2Fd", deleted)
}

func TestKindOfProvider(t *testing.T) {
	assert.Equal(t, ProviderCloud, KindOfProvider(""))
	assert.Equal(t, ProviderCloud, KindOfProvider(CloudProviderID))
	assert.Equal(t, ProviderMirror, KindOfProvider("ldap"))
	assert.Equal(t, ProviderMirror, KindOfProvider("ad"))
	assert.Equal(t, ProviderSAML, KindOfProvider(SAMLProviderID))
	assert.Equal(t, ProviderSocial, KindOfProvider("google"))
}
