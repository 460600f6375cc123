package migrators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
)

func TestGroupMigrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srcDir := seedDirectory(t, f.src, stormpath.Directory{Name: "Eng"})
	src := seedGroup(t, f.src, srcDir, stormpath.Group{Name: "Admins", Description: "Administrators"})
	seedCustomData(t, f.src, src.Href, stormpath.CustomData{"level": 3.0})
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})

	m := NewGroupMigrator(f.env)
	dst, err := m.Migrate(ctx, dstDir, src)
	require.NoError(t, err)
	require.NotNil(t, dst)
	assert.Equal(t, "Administrators", dst.Description)
	assert.Equal(t, dstDir.Href, dst.Directory.HrefOrEmpty())

	data, err := f.dst.GetCustomData(ctx, dst.Href)
	require.NoError(t, err)
	assert.Equal(t, 3.0, data["level"])

	src.Description = "Admins only"
	again, err := m.Migrate(ctx, dstDir, src)
	require.NoError(t, err)
	assert.Equal(t, dst.Href, again.Href)
	assert.Equal(t, "Admins only", again.Description)
	assert.Equal(t, 1, f.count(kindGroup, outcomeCreated))
	assert.Equal(t, 1, f.count(kindGroup, outcomeUpdated))
}

func TestGroupFindDestinationIsScopedToDirectory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	eng := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	sales := seedDirectory(t, f.dst, stormpath.Directory{Name: "Sales"})
	seedGroup(t, f.dst, sales, stormpath.Group{Name: "Admins"})

	found, err := NewGroupMigrator(f.env).FindDestination(ctx, eng, "Admins")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestGroupMigrateFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srcDir := seedDirectory(t, f.src, stormpath.Directory{Name: "Eng"})
	src := seedGroup(t, f.src, srcDir, stormpath.Group{Name: "Admins"})
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	f.dst.FailNext("CreateGroup", permanent())

	dst, err := NewGroupMigrator(f.env).Migrate(ctx, dstDir, src)
	require.NoError(t, err)
	assert.Nil(t, dst)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to copy group").Len())
	assert.Equal(t, 1, f.count(kindGroup, outcomeFailed))
}
