package migrators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
)

type membershipFixture struct {
	*fixture
	srcDir     *stormpath.Directory
	srcGroup   *stormpath.Group
	srcAccount *stormpath.Account
	membership *stormpath.GroupMembership
}

func newMembershipFixture(t *testing.T) *membershipFixture {
	t.Helper()
	f := newFixture(t)
	mf := &membershipFixture{fixture: f}
	mf.srcDir = seedDirectory(t, f.src, stormpath.Directory{Name: "Eng"})
	mf.srcGroup = seedGroup(t, f.src, mf.srcDir, stormpath.Group{Name: "Admins"})
	mf.srcAccount = seedAccount(t, f.src, mf.srcDir, stormpath.Account{
		Username: "alice", Email: "alice@example.com", GivenName: "Alice", Surname: "Smith",
	})
	seedMembership(t, f.src, mf.srcAccount, mf.srcGroup)

	memberships, err := f.src.ListGroupMemberships(context.Background(), mf.srcAccount.Href)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	mf.membership = &memberships[0]
	return mf
}

func TestGroupMembershipMigrate(t *testing.T) {
	ctx := context.Background()
	f := newMembershipFixture(t)
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	dstGroup := seedGroup(t, f.dst, dstDir, stormpath.Group{Name: "Admins"})
	dstAccount := seedAccount(t, f.dst, dstDir, stormpath.Account{
		Username: "alice", Email: "alice@example.com", GivenName: "Alice", Surname: "Smith",
	})

	m := NewGroupMembershipMigrator(f.env)
	outcome, err := m.Migrate(ctx, f.membership, dstAccount)
	require.NoError(t, err)
	assert.Equal(t, MembershipCreated, outcome)

	members, err := f.dst.ListGroupMembers(dstGroup.Href)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, dstAccount.Href, members[0].Account.HrefOrEmpty())

	outcome, err = m.Migrate(ctx, f.membership, nil)
	require.NoError(t, err)
	assert.Equal(t, MembershipExisted, outcome)
	assert.Equal(t, 1, f.count(kindMembership, outcomeCreated))
	assert.Equal(t, 1, f.count(kindMembership, outcomeExisted))
}

func TestGroupMembershipSkipsMissingGroup(t *testing.T) {
	ctx := context.Background()
	f := newMembershipFixture(t)
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	dstAccount := seedAccount(t, f.dst, dstDir, stormpath.Account{
		Username: "alice", Email: "alice@example.com", GivenName: "Alice", Surname: "Smith",
	})

	outcome, err := NewGroupMembershipMigrator(f.env).Migrate(ctx, f.membership, dstAccount)
	require.NoError(t, err)
	assert.Equal(t, MembershipSkippedGroup, outcome)
	assert.Equal(t, 1, f.warnings("Group not found in destination, skipping membership"))
}

func TestGroupMembershipSkipsMissingAccount(t *testing.T) {
	ctx := context.Background()
	f := newMembershipFixture(t)
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	seedGroup(t, f.dst, dstDir, stormpath.Group{Name: "Admins"})

	outcome, err := NewGroupMembershipMigrator(f.env).Migrate(ctx, f.membership, nil)
	require.NoError(t, err)
	assert.Equal(t, MembershipSkippedAccount, outcome)
	assert.Equal(t, "skipped account", outcome.String())
}

func TestGroupMembershipDirectoryMissing(t *testing.T) {
	ctx := context.Background()
	f := newMembershipFixture(t)

	outcome, err := NewGroupMembershipMigrator(f.env).Migrate(ctx, f.membership, nil)
	require.NoError(t, err)
	assert.Equal(t, MembershipDirectoryMissing, outcome)
	assert.Equal(t, 1, f.logs.FilterMessage("Directory missing from destination").Len())
}

func TestGroupMembershipFailure(t *testing.T) {
	ctx := context.Background()
	f := newMembershipFixture(t)
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	seedGroup(t, f.dst, dstDir, stormpath.Group{Name: "Admins"})
	dstAccount := seedAccount(t, f.dst, dstDir, stormpath.Account{
		Username: "alice", Email: "alice@example.com", GivenName: "Alice", Surname: "Smith",
	})
	f.dst.FailNext("CreateGroupMembership", permanent())

	outcome, err := NewGroupMembershipMigrator(f.env).Migrate(ctx, f.membership, dstAccount)
	require.NoError(t, err)
	assert.Equal(t, MembershipFailed, outcome)
	assert.Equal(t, 1, f.count(kindMembership, outcomeFailed))
}
