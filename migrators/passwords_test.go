package migrators

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func writePasswordFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passwords.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestPasswordFileLookup(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Sup3rSecret!"), bcrypt.MinCost)
	require.NoError(t, err)

	path := writePasswordFile(t,
		`{"href": "https://source.test/v1/accounts/a", "password": "`+string(hash)+`"}`,
		``,
		`{"href": "https://source.test/v1/accounts/b", "password": "$stormpath2$MD5$1$abc$def"}`,
	)
	pf, err := OpenPasswordFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, pf.Path())

	got, ok, err := pf.Lookup("https://source.test/v1/accounts/a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, string(hash), got)

	got, ok, err = pf.Lookup("https://source.test/v1/accounts/b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$stormpath2$MD5$1$abc$def", got)

	_, ok, err = pf.Lookup("https://source.test/v1/accounts/missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordFileErrors(t *testing.T) {
	_, err := OpenPasswordFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)

	_, err = OpenPasswordFile(t.TempDir())
	assert.ErrorContains(t, err, "is a directory")

	pf, err := OpenPasswordFile(writePasswordFile(t,
		`{"href": "https://source.test/v1/accounts/a", "password": "plaintext"}`))
	require.NoError(t, err)
	_, ok, err := pf.Lookup("https://source.test/v1/accounts/a")
	assert.ErrorContains(t, err, "modular crypt format")
	assert.False(t, ok)

	pf, err = OpenPasswordFile(writePasswordFile(t,
		`{"href": "https://source.test/v1/accounts/a", "password": "$2a$bogus"}`))
	require.NoError(t, err)
	_, _, err = pf.Lookup("https://source.test/v1/accounts/a")
	assert.ErrorContains(t, err, "invalid bcrypt hash")
}

func TestOpenPasswordFileRejectsMalformedRecords(t *testing.T) {
	valid := `{"href": "https://source.test/v1/accounts/b", "password": "$stormpath2$MD5$1$abc$def"}`

	_, err := OpenPasswordFile(writePasswordFile(t, `{"href": "https://source.test/v1/accounts/a", "pass`, valid))
	assert.ErrorContains(t, err, "passwords.jsonl:1")

	_, err = OpenPasswordFile(writePasswordFile(t, valid, `not json`))
	assert.ErrorContains(t, err, "passwords.jsonl:2")

	_, err = OpenPasswordFile(writePasswordFile(t, valid, `{"password": "$2a$10$x"}`))
	assert.ErrorContains(t, err, "no href")
}

func TestPasswordFileBadHashOnlyAffectsItsAccount(t *testing.T) {
	pf, err := OpenPasswordFile(writePasswordFile(t,
		`{"href": "https://source.test/v1/accounts/a", "password": "plaintext"}`,
		`{"href": "https://source.test/v1/accounts/b", "password": "$stormpath2$MD5$1$abc$def"}`,
	))
	require.NoError(t, err)

	_, _, err = pf.Lookup("https://source.test/v1/accounts/a")
	assert.Error(t, err)

	got, ok, err := pf.Lookup("https://source.test/v1/accounts/b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "$stormpath2$MD5$1$abc$def", got)
}

func TestPasswordMapLookup(t *testing.T) {
	m := PasswordMap{
		"a": "$2a$10$abcdefghijklmnopqrstuuS8m4Zl3sM1vYH5yK1V6bq2kM0Qw5vFq",
		"b": "nope",
	}
	_, ok, err := m.Lookup("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = m.Lookup("b")
	assert.Error(t, err)
}
