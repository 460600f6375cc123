package migrators

import (
	"context"

	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindMapping = "accountStoreMapping"

type mappingScope int

const (
	applicationScope mappingScope = iota
	organizationScope
)

// AccountStoreMappingMigrator copies the account store mappings of either an
// application or an organization.
type AccountStoreMappingMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
	scope  mappingScope

	directories   *DirectoryMigrator
	groups        *GroupMigrator
	organizations *OrganizationMigrator
}

func NewApplicationMappingMigrator(env *Env) *AccountStoreMappingMigrator {
	return newMappingMigrator(env, applicationScope)
}

func NewOrganizationMappingMigrator(env *Env) *AccountStoreMappingMigrator {
	return newMappingMigrator(env, organizationScope)
}

func newMappingMigrator(env *Env, scope mappingScope) *AccountStoreMappingMigrator {
	return &AccountStoreMappingMigrator{
		env:           env,
		logger:        env.named(kindMapping),
		scope:         scope,
		directories:   NewDirectoryMigrator(env),
		groups:        NewGroupMigrator(env),
		organizations: NewOrganizationMigrator(env),
	}
}

// FindDestinationStore resolves a source account store to its destination
// counterpart with the same lookups the resource migrators use. A nil result
// means the store does not exist in the destination.
func (m *AccountStoreMappingMigrator) FindDestinationStore(ctx context.Context, store stormpath.AccountStoreRef) (*stormpath.AccountStoreRef, error) {
	kv := []interface{}{"store", store.Href, "storeKind", string(store.Kind)}

	switch store.Kind {
	case stormpath.StoreDirectory:
		src, err := call(ctx, m.env, m.logger, "Failed to fetch source directory", kv, func() (*stormpath.Directory, error) {
			return m.env.Source.GetDirectory(ctx, store.Href)
		})
		if err != nil || src == nil {
			return nil, err
		}
		dst, err := m.directories.FindDestination(ctx, src.Name)
		if err != nil || dst == nil {
			return nil, err
		}
		return &stormpath.AccountStoreRef{Kind: stormpath.StoreDirectory, Href: dst.Href}, nil

	case stormpath.StoreGroup:
		src, err := call(ctx, m.env, m.logger, "Failed to fetch source group", kv, func() (*stormpath.Group, error) {
			return m.env.Source.GetGroup(ctx, store.Href)
		})
		if err != nil || src == nil || src.Directory == nil {
			return nil, err
		}
		srcDir, err := call(ctx, m.env, m.logger, "Failed to fetch source directory", kv, func() (*stormpath.Directory, error) {
			return m.env.Source.GetDirectory(ctx, src.Directory.Href)
		})
		if err != nil || srcDir == nil {
			return nil, err
		}
		dstDir, err := m.directories.FindDestination(ctx, srcDir.Name)
		if err != nil || dstDir == nil {
			return nil, err
		}
		dst, err := m.groups.FindDestination(ctx, dstDir, src.Name)
		if err != nil || dst == nil {
			return nil, err
		}
		return &stormpath.AccountStoreRef{Kind: stormpath.StoreGroup, Href: dst.Href}, nil

	case stormpath.StoreOrganization:
		src, err := call(ctx, m.env, m.logger, "Failed to fetch source organization", kv, func() (*stormpath.Organization, error) {
			return m.env.Source.GetOrganization(ctx, store.Href)
		})
		if err != nil || src == nil {
			return nil, err
		}
		dst, err := m.organizations.FindDestination(ctx, src.Name, src.NameKey)
		if err != nil || dst == nil {
			return nil, err
		}
		return &stormpath.AccountStoreRef{Kind: stormpath.StoreOrganization, Href: dst.Href}, nil
	}
	return nil, nil
}

// Migrate attaches the destination counterpart of src's account store to the
// destination parent at parentHref. Mappings already present are left as
// they are.
func (m *AccountStoreMappingMigrator) Migrate(ctx context.Context, parentHref string, src *stormpath.AccountStoreMapping) (*stormpath.AccountStoreMapping, error) {
	kv := []interface{}{"parent", parentHref, "store", src.AccountStore.Href, "storeKind", string(src.AccountStore.Kind)}

	if src.AccountStore.Kind == stormpath.StoreUnknown {
		m.logger.Warnw("Skipping mapping to unknown account store type", kv...)
		m.env.Metrics.record(kindMapping, outcomeSkipped)
		return nil, nil
	}
	if m.scope == organizationScope && src.AccountStore.Kind == stormpath.StoreOrganization {
		m.logger.Warnw("Skipping organization mapped into an organization", kv...)
		m.env.Metrics.record(kindMapping, outcomeSkipped)
		return nil, nil
	}

	store, err := m.FindDestinationStore(ctx, src.AccountStore)
	if err != nil {
		m.env.Metrics.record(kindMapping, outcomeFailed)
		return nil, settle(m.logger, "Failed to resolve account store", kv, err)
	}
	if store == nil {
		m.logger.Warnw("Account store not found in destination, skipping mapping", kv...)
		m.env.Metrics.record(kindMapping, outcomeSkipped)
		return nil, nil
	}

	existing, err := call(ctx, m.env, m.logger, "Failed to list account store mappings", kv, func() ([]stormpath.AccountStoreMapping, error) {
		return m.env.Destination.ListAccountStoreMappings(ctx, parentHref)
	})
	if err != nil {
		m.env.Metrics.record(kindMapping, outcomeFailed)
		return nil, settle(m.logger, "Failed to list account store mappings", kv, err)
	}
	for i := range existing {
		if existing[i].AccountStore.Href == store.Href {
			m.env.Metrics.record(kindMapping, outcomeExisted)
			return &existing[i], nil
		}
	}

	data := &stormpath.AccountStoreMapping{
		AccountStore:          *store,
		ListIndex:             src.ListIndex,
		IsDefaultAccountStore: src.IsDefaultAccountStore,
		IsDefaultGroupStore:   src.IsDefaultGroupStore,
	}
	parent := &stormpath.Link{Href: parentHref}
	if m.scope == organizationScope {
		data.Organization = parent
	} else {
		data.Application = parent
	}
	dst, err := call(ctx, m.env, m.logger, "Failed to create account store mapping", kv, func() (*stormpath.AccountStoreMapping, error) {
		return m.env.Destination.CreateAccountStoreMapping(ctx, data)
	})
	if err != nil {
		m.env.Metrics.record(kindMapping, outcomeFailed)
		return nil, settle(m.logger, "Failed to create account store mapping", kv, err)
	}
	m.env.Metrics.record(kindMapping, outcomeCreated)
	m.logger.Infow("Copied account store mapping", append(kv, "listIndex", src.ListIndex)...)
	return dst, nil
}
