package migrators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
)

func TestApplicationMigrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := seedApplication(t, f.src, stormpath.Application{Name: "Portal", Description: "Customer portal"})
	seedCustomData(t, f.src, src.Href, stormpath.CustomData{"theme": "dark"})

	policy, err := f.src.GetOAuthPolicy(ctx, src.Href)
	require.NoError(t, err)
	policy.AccessTokenTTL = "PT2H"
	policy.RefreshTokenTTL = "P7D"
	_, err = f.src.UpdateOAuthPolicy(ctx, policy)
	require.NoError(t, err)

	m := NewApplicationMigrator(f.env)
	dst, err := m.Migrate(ctx, src)
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, "Portal", dst.Name)
	assert.Equal(t, "Customer portal", dst.Description)

	dstPolicy, err := f.dst.GetOAuthPolicy(ctx, dst.Href)
	require.NoError(t, err)
	assert.Equal(t, "PT2H", dstPolicy.AccessTokenTTL)
	assert.Equal(t, "P7D", dstPolicy.RefreshTokenTTL)

	data, err := f.dst.GetCustomData(ctx, dst.Href)
	require.NoError(t, err)
	assert.Equal(t, "dark", data["theme"])

	src.Status = stormpath.StatusDisabled
	again, err := m.Migrate(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, dst.Href, again.Href)
	assert.Equal(t, stormpath.StatusDisabled, again.Status)

	apps, err := f.dst.ListApplications(ctx)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}

func TestApplicationMigrateKeepsGoingWhenOAuthPolicyFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := seedApplication(t, f.src, stormpath.Application{Name: "Portal"})
	f.dst.FailNext("UpdateOAuthPolicy", permanent())

	dst, err := NewApplicationMigrator(f.env).Migrate(ctx, src)
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to copy OAuth policy").Len())
}
