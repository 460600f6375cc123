package migrators

import (
	"context"

	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindMembership = "groupMembership"

// MembershipOutcome reports what became of one group membership.
type MembershipOutcome int

const (
	MembershipFailed MembershipOutcome = iota
	MembershipCreated
	MembershipExisted
	MembershipSkippedGroup
	MembershipSkippedAccount
	// MembershipDirectoryMissing means the directory owning the group has no
	// destination counterpart, so the destination tenant is inconsistent.
	MembershipDirectoryMissing
)

func (o MembershipOutcome) String() string {
	switch o {
	case MembershipCreated:
		return "created"
	case MembershipExisted:
		return "existed"
	case MembershipSkippedGroup:
		return "skipped group"
	case MembershipSkippedAccount:
		return "skipped account"
	case MembershipDirectoryMissing:
		return "directory missing"
	}
	return "failed"
}

type GroupMembershipMigrator struct {
	env    *Env
	logger *zap.SugaredLogger

	directories *DirectoryMigrator
	groups      *GroupMigrator
	accounts    *AccountMigrator
}

func NewGroupMembershipMigrator(env *Env) *GroupMembershipMigrator {
	return &GroupMembershipMigrator{
		env:         env,
		logger:      env.named(kindMembership),
		directories: NewDirectoryMigrator(env),
		groups:      NewGroupMigrator(env),
		accounts:    NewAccountMigrator(env),
	}
}

// Migrate recreates the source membership src in the destination. dstAccount
// is the already migrated member; when nil the account is looked up in the
// destination directory that owns the group. Only cancellation is returned as
// an error, every other failure is logged and reported as MembershipFailed.
func (m *GroupMembershipMigrator) Migrate(ctx context.Context, src *stormpath.GroupMembership, dstAccount *stormpath.Account) (MembershipOutcome, error) {
	kv := []interface{}{"membership", src.Href, "group", src.Group.HrefOrEmpty(), "account", src.Account.HrefOrEmpty()}
	outcome, err := m.migrate(ctx, kv, src, dstAccount)
	if err != nil {
		m.env.Metrics.record(kindMembership, outcomeFailed)
		return MembershipFailed, settle(m.logger, "Failed to copy group membership", kv, err)
	}
	switch outcome {
	case MembershipCreated:
		m.env.Metrics.record(kindMembership, outcomeCreated)
	case MembershipExisted:
		m.env.Metrics.record(kindMembership, outcomeExisted)
	default:
		m.env.Metrics.record(kindMembership, outcomeSkipped)
	}
	return outcome, nil
}

func (m *GroupMembershipMigrator) migrate(ctx context.Context, kv []interface{}, src *stormpath.GroupMembership, dstAccount *stormpath.Account) (MembershipOutcome, error) {
	if src.Group == nil || src.Group.Href == "" {
		m.logger.Warnw("Membership has no group, skipping", kv...)
		return MembershipSkippedGroup, nil
	}
	srcGroup, err := call(ctx, m.env, m.logger, "Failed to fetch source group", kv, func() (*stormpath.Group, error) {
		return m.env.Source.GetGroup(ctx, src.Group.Href)
	})
	if err != nil {
		return MembershipFailed, err
	}
	if srcGroup == nil || srcGroup.Directory == nil {
		m.logger.Warnw("Source group not found, skipping membership", kv...)
		return MembershipSkippedGroup, nil
	}
	srcDir, err := call(ctx, m.env, m.logger, "Failed to fetch source directory", kv, func() (*stormpath.Directory, error) {
		return m.env.Source.GetDirectory(ctx, srcGroup.Directory.Href)
	})
	if err != nil {
		return MembershipFailed, err
	}
	if srcDir == nil {
		m.logger.Warnw("Source directory of group not found, skipping membership", kv...)
		return MembershipSkippedGroup, nil
	}

	dstDir, err := m.directories.FindDestination(ctx, srcDir.Name)
	if err != nil {
		return MembershipFailed, err
	}
	if dstDir == nil {
		m.logger.Errorw("Directory missing from destination", append(kv, "directory", srcDir.Name)...)
		return MembershipDirectoryMissing, nil
	}

	dstGroup, err := m.groups.FindDestination(ctx, dstDir, srcGroup.Name)
	if err != nil {
		return MembershipFailed, err
	}
	if dstGroup == nil {
		m.logger.Warnw("Group not found in destination, skipping membership", append(kv, "name", srcGroup.Name)...)
		return MembershipSkippedGroup, nil
	}

	if dstAccount == nil {
		dstAccount, err = m.findAccount(ctx, kv, src, dstDir)
		if err != nil {
			return MembershipFailed, err
		}
		if dstAccount == nil {
			m.logger.Warnw("Account not found in destination, skipping membership", kv...)
			return MembershipSkippedAccount, nil
		}
	}

	memberships, err := call(ctx, m.env, m.logger, "Failed to list group memberships", kv, func() ([]stormpath.GroupMembership, error) {
		return m.env.Destination.ListGroupMemberships(ctx, dstAccount.Href)
	})
	if err != nil {
		return MembershipFailed, err
	}
	for _, gm := range memberships {
		if gm.Group.HrefOrEmpty() == dstGroup.Href {
			return MembershipExisted, nil
		}
	}

	if _, err := call(ctx, m.env, m.logger, "Failed to create group membership", kv, func() (*stormpath.GroupMembership, error) {
		return m.env.Destination.CreateGroupMembership(ctx, dstAccount.Href, dstGroup.Href)
	}); err != nil {
		return MembershipFailed, err
	}
	m.logger.Infow("Copied group membership", "group", dstGroup.Name, "account", dstAccount.Href)
	return MembershipCreated, nil
}

func (m *GroupMembershipMigrator) findAccount(ctx context.Context, kv []interface{}, src *stormpath.GroupMembership, dstDir *stormpath.Directory) (*stormpath.Account, error) {
	if src.Account == nil || src.Account.Href == "" {
		return nil, nil
	}
	srcAccount, err := call(ctx, m.env, m.logger, "Failed to fetch source account", kv, func() (*stormpath.Account, error) {
		return m.env.Source.GetAccount(ctx, src.Account.Href)
	})
	if err != nil || srcAccount == nil {
		return nil, err
	}
	return m.accounts.FindDestination(ctx, dstDir, srcAccount)
}
