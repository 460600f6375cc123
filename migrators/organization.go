package migrators

import (
	"context"

	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindOrganization = "organization"

type OrganizationMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
}

func NewOrganizationMigrator(env *Env) *OrganizationMigrator {
	return &OrganizationMigrator{env: env, logger: env.named(kindOrganization)}
}

// FindDestination matches an organization by name, then by name key. Either
// argument may be empty.
func (m *OrganizationMigrator) FindDestination(ctx context.Context, name, nameKey string) (*stormpath.Organization, error) {
	kv := []interface{}{"name", name, "nameKey", nameKey}
	if name != "" {
		orgs, err := call(ctx, m.env, m.logger, "Failed to search for organization", kv, func() ([]stormpath.Organization, error) {
			return m.env.Destination.SearchOrganizations(ctx, stormpath.OrganizationQuery{Name: name})
		})
		if err != nil {
			return nil, err
		}
		for i := range orgs {
			if orgs[i].Name == name {
				return &orgs[i], nil
			}
		}
	}
	if nameKey != "" {
		orgs, err := call(ctx, m.env, m.logger, "Failed to search for organization", kv, func() ([]stormpath.Organization, error) {
			return m.env.Destination.SearchOrganizations(ctx, stormpath.OrganizationQuery{NameKey: nameKey})
		})
		if err != nil {
			return nil, err
		}
		for i := range orgs {
			if orgs[i].NameKey == nameKey {
				return &orgs[i], nil
			}
		}
	}
	return nil, nil
}

func (m *OrganizationMigrator) Copy(ctx context.Context, src, existing *stormpath.Organization) (*stormpath.Organization, error) {
	kv := []interface{}{"name", src.Name, "nameKey", src.NameKey}
	data := &stormpath.Organization{
		Name:        src.Name,
		NameKey:     src.NameKey,
		Description: src.Description,
		Status:      src.Status,
	}
	if existing != nil {
		data.Href = existing.Href
		return call(ctx, m.env, m.logger, "Failed to update organization", kv, func() (*stormpath.Organization, error) {
			return m.env.Destination.UpdateOrganization(ctx, data)
		})
	}
	return call(ctx, m.env, m.logger, "Failed to create organization", kv, func() (*stormpath.Organization, error) {
		return m.env.Destination.CreateOrganization(ctx, data)
	})
}

func (m *OrganizationMigrator) CopyCustomData(ctx context.Context, src, dst *stormpath.Organization) (stormpath.CustomData, error) {
	return m.env.copyCustomData(ctx, m.logger, []interface{}{"name", src.Name}, src.Href, dst.Href)
}

// Migrate copies one organization with its custom data.
func (m *OrganizationMigrator) Migrate(ctx context.Context, src *stormpath.Organization) (*stormpath.Organization, error) {
	kv := []interface{}{"name", src.Name, "nameKey", src.NameKey}

	existing, err := m.FindDestination(ctx, src.Name, src.NameKey)
	if err != nil {
		m.env.Metrics.record(kindOrganization, outcomeFailed)
		return nil, settle(m.logger, "Failed to search for organization", kv, err)
	}
	dst, err := m.Copy(ctx, src, existing)
	if err != nil {
		m.env.Metrics.record(kindOrganization, outcomeFailed)
		return nil, settle(m.logger, "Failed to copy organization", kv, err)
	}
	if existing != nil {
		m.env.Metrics.record(kindOrganization, outcomeUpdated)
	} else {
		m.env.Metrics.record(kindOrganization, outcomeCreated)
	}

	if _, err := m.CopyCustomData(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy organization custom data", kv, err); err != nil {
			return nil, err
		}
	}

	m.logger.Infow("Copied organization", "name", dst.Name, "nameKey", dst.NameKey, "updated", existing != nil)
	return dst, nil
}
