package migrators

import (
	"context"

	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindGroup = "group"

type GroupMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
}

func NewGroupMigrator(env *Env) *GroupMigrator {
	return &GroupMigrator{env: env, logger: env.named(kindGroup)}
}

// FindDestination returns the group called name inside the destination
// directory dir, or nil.
func (m *GroupMigrator) FindDestination(ctx context.Context, dir *stormpath.Directory, name string) (*stormpath.Group, error) {
	kv := []interface{}{"name", name, "directory", dir.Name}
	groups, err := call(ctx, m.env, m.logger, "Failed to search for group", kv, func() ([]stormpath.Group, error) {
		return m.env.Destination.SearchGroups(ctx, dir.Href, name)
	})
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Name == name {
			return &groups[i], nil
		}
	}
	return nil, nil
}

func (m *GroupMigrator) Copy(ctx context.Context, dir *stormpath.Directory, src, existing *stormpath.Group) (*stormpath.Group, error) {
	kv := []interface{}{"name", src.Name, "directory", dir.Name}
	data := &stormpath.Group{
		Name:        src.Name,
		Description: src.Description,
		Status:      src.Status,
	}
	if existing != nil {
		data.Href = existing.Href
		return call(ctx, m.env, m.logger, "Failed to update group", kv, func() (*stormpath.Group, error) {
			return m.env.Destination.UpdateGroup(ctx, data)
		})
	}
	return call(ctx, m.env, m.logger, "Failed to create group", kv, func() (*stormpath.Group, error) {
		return m.env.Destination.CreateGroup(ctx, dir.Href, data)
	})
}

func (m *GroupMigrator) CopyCustomData(ctx context.Context, src, dst *stormpath.Group) (stormpath.CustomData, error) {
	return m.env.copyCustomData(ctx, m.logger, []interface{}{"name", src.Name}, src.Href, dst.Href)
}

// Migrate copies one group into the destination directory dir.
func (m *GroupMigrator) Migrate(ctx context.Context, dir *stormpath.Directory, src *stormpath.Group) (*stormpath.Group, error) {
	kv := []interface{}{"name", src.Name, "directory", dir.Name}

	existing, err := m.FindDestination(ctx, dir, src.Name)
	if err != nil {
		m.env.Metrics.record(kindGroup, outcomeFailed)
		return nil, settle(m.logger, "Failed to search for group", kv, err)
	}
	dst, err := m.Copy(ctx, dir, src, existing)
	if err != nil {
		m.env.Metrics.record(kindGroup, outcomeFailed)
		return nil, settle(m.logger, "Failed to copy group", kv, err)
	}
	if existing != nil {
		m.env.Metrics.record(kindGroup, outcomeUpdated)
	} else {
		m.env.Metrics.record(kindGroup, outcomeCreated)
	}

	if _, err := m.CopyCustomData(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy group custom data", kv, err); err != nil {
			return nil, err
		}
	}

	m.logger.Infow("Copied group", "name", dst.Name, "directory", dir.Name, "updated", existing != nil)
	return dst, nil
}
