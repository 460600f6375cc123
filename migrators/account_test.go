package migrators

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const aliceHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func accountFixture(t *testing.T) (*fixture, *stormpath.Directory, *stormpath.Directory) {
	t.Helper()
	f := newFixture(t)
	srcDir := seedDirectory(t, f.src, stormpath.Directory{Name: "Eng"})
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	return f, srcDir, dstDir
}

func TestAccountMigrateWithPasswordHash(t *testing.T) {
	ctx := context.Background()
	f, srcDir, dstDir := accountFixture(t)

	policy, err := f.dst.GetAccountCreationPolicy(ctx, dstDir.Href)
	require.NoError(t, err)
	policy.VerificationEmailStatus = stormpath.StatusEnabled
	_, err = f.dst.UpdateAccountCreationPolicy(ctx, policy)
	require.NoError(t, err)

	src := seedAccount(t, f.src, srcDir, stormpath.Account{
		Username:   "alice",
		Email:      "alice@example.com",
		GivenName:  "Alice",
		MiddleName: "B",
		Surname:    "Smith",
		Status:     stormpath.StatusDisabled,
	})
	seedCustomData(t, f.src, src.Href, stormpath.CustomData{"favoriteColor": "red"})

	dst, err := NewAccountMigrator(f.env).Migrate(ctx, dstDir, src, aliceHash)
	require.NoError(t, err)
	require.NotNil(t, dst)

	assert.Equal(t, src.Username, dst.Username)
	assert.Equal(t, src.Email, dst.Email)
	assert.Equal(t, src.GivenName, dst.GivenName)
	assert.Equal(t, src.MiddleName, dst.MiddleName)
	assert.Equal(t, src.Surname, dst.Surname)
	assert.Equal(t, src.Status, dst.Status)

	password, format, ok := f.dst.Credential(dst.Href)
	require.True(t, ok)
	assert.Equal(t, aliceHash, password)
	assert.Equal(t, "mcf", format)
	assert.Zero(t, f.dst.SentEmails())

	data, err := f.dst.GetCustomData(ctx, dst.Href)
	require.NoError(t, err)
	assert.Equal(t, "red", data["favoriteColor"])
	assert.Equal(t, 1, f.count(kindAccount, outcomeCreated))
}

func TestAccountMigrateWithoutPasswordHash(t *testing.T) {
	ctx := context.Background()
	f, srcDir, dstDir := accountFixture(t)
	src := seedAccount(t, f.src, srcDir, stormpath.Account{Email: "bob@example.com", GivenName: "Bob", Surname: "Jones"})

	dst, err := NewAccountMigrator(f.env).Migrate(ctx, dstDir, src, "")
	require.NoError(t, err)
	require.NotNil(t, dst)

	password, format, ok := f.dst.Credential(dst.Href)
	require.True(t, ok)
	assert.Len(t, password, 32)
	assert.Empty(t, format)
	assert.Equal(t, 1, f.warnings("No password hash available, creating account with a random password"))
	assert.Zero(t, f.dst.SentEmails())
}

func TestAccountMigrateSocial(t *testing.T) {
	ctx := context.Background()
	f, srcDir, dstDir := accountFixture(t)
	src := seedAccount(t, f.src, srcDir, stormpath.Account{
		ProviderData: &stormpath.ProviderData{ProviderID: "google", AccessToken: "ya29.token"},
	})

	m := NewAccountMigrator(f.env)
	dst, err := m.Migrate(ctx, dstDir, src, aliceHash)
	require.NoError(t, err)
	require.NotNil(t, dst)
	require.NotNil(t, dst.ProviderData)
	assert.Equal(t, "google", dst.ProviderData.ProviderID)
	assert.Equal(t, "ya29.token", dst.ProviderData.AccessToken)

	password, _, ok := f.dst.Credential(dst.Href)
	require.True(t, ok)
	assert.Empty(t, password)

	again, err := m.Migrate(ctx, dstDir, src, "")
	require.NoError(t, err)
	assert.Equal(t, dst.Href, again.Href)
}

func TestAccountMigrateUpdatesExisting(t *testing.T) {
	ctx := context.Background()
	f, srcDir, dstDir := accountFixture(t)
	existing := seedAccount(t, f.dst, dstDir, stormpath.Account{
		Username: "carol",
		Email:    "carol@old.example.com",
		Password: "Or1ginal!",
	})
	src := seedAccount(t, f.src, srcDir, stormpath.Account{
		Username:  "carol",
		Email:     "carol@example.com",
		GivenName: "Carol",
		Surname:   "King",
	})

	dst, err := NewAccountMigrator(f.env).Migrate(ctx, dstDir, src, aliceHash)
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, existing.Href, dst.Href)
	assert.Equal(t, "carol@example.com", dst.Email)
	assert.Equal(t, "Carol", dst.GivenName)

	password, format, _ := f.dst.Credential(dst.Href)
	assert.Equal(t, "Or1ginal!", password)
	assert.Empty(t, format)
	assert.Equal(t, 1, f.count(kindAccount, outcomeUpdated))
}

func TestAccountFindDestinationFallsBackToEmail(t *testing.T) {
	ctx := context.Background()
	f, srcDir, dstDir := accountFixture(t)
	existing := seedAccount(t, f.dst, dstDir, stormpath.Account{Username: "dave2", Email: "dave@example.com"})
	src := seedAccount(t, f.src, srcDir, stormpath.Account{Username: "dave", Email: "dave@example.com"})

	found, err := NewAccountMigrator(f.env).FindDestination(ctx, dstDir, src)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, existing.Href, found.Href)
}

func TestAccountMigrateSkipsUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	f, srcDir, dstDir := accountFixture(t)
	src := seedAccount(t, f.src, srcDir, stormpath.Account{
		ProviderData: &stormpath.ProviderData{ProviderID: "saml", AccessToken: "assertion"},
	})

	dst, err := NewAccountMigrator(f.env).Migrate(ctx, dstDir, src, "")
	require.NoError(t, err)
	assert.Nil(t, dst)
	assert.Zero(t, f.dst.Calls("CreateAccount"))
	assert.Equal(t, 1, f.warnings("Skipping account with unsupported provider"))
	assert.Equal(t, 1, f.count(kindAccount, outcomeSkipped))
}

func TestRandomPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		p, err := randomPassword()
		require.NoError(t, err)
		assert.Len(t, p, 32)
		assert.True(t, strings.ContainsAny(p, lowerChars))
		assert.True(t, strings.ContainsAny(p, upperChars))
		assert.True(t, strings.ContainsAny(p, digitChars))
		assert.True(t, strings.ContainsAny(p, symbolChars))
		seen[p] = true
	}
	assert.Len(t, seen, 20)
}
