package migrators

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

// ErrDirectoryMissing aborts a run: a group membership pointed at a directory
// that has no destination counterpart even though directories are copied
// before their memberships.
var ErrDirectoryMissing = errors.New("directory missing from destination")

const (
	DefaultAdminDirectory    = "Stormpath Administrators"
	DefaultSystemApplication = "Stormpath"
)

type Option func(m *TenantMigrator) error

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(m *TenantMigrator) error {
		m.env.Logger = logger.Named("migrate")
		return nil
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *TenantMigrator) error {
		if p.MaxAttempts < 0 || p.MaxDuration < 0 {
			return errors.New("retry limits must not be negative")
		}
		m.env.Retry = p
		return nil
	}
}

// WithPasswords supplies the exported password hashes of source accounts.
func WithPasswords(src PasswordSource) Option {
	return func(m *TenantMigrator) error {
		m.passwords = src
		return nil
	}
}

// WithFromDate leaves out resources created before t.
func WithFromDate(t time.Time) Option {
	return func(m *TenantMigrator) error {
		m.from = t
		return nil
	}
}

// WithSkipDirectories replaces the names of directories that are never
// copied.
func WithSkipDirectories(names ...string) Option {
	return func(m *TenantMigrator) error {
		m.skipDirectories = nameSet(names)
		return nil
	}
}

// WithSkipApplications replaces the names of applications that are never
// copied.
func WithSkipApplications(names ...string) Option {
	return func(m *TenantMigrator) error {
		m.skipApplications = nameSet(names)
		return nil
	}
}

// WithMappingOutput writes the href substitution index as CSV to w once the
// run completes.
func WithMappingOutput(w io.Writer) Option {
	return func(m *TenantMigrator) error {
		m.mappingOutput = w
		return nil
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *TenantMigrator) error {
		m.env.Metrics = metrics
		return nil
	}
}

func nameSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// TenantMigrator copies a whole tenant in dependency order: directories with
// their groups, accounts, memberships and workflows, then organizations, then
// applications, and finally the custom data href substitution.
type TenantMigrator struct {
	env              *Env
	logger           *zap.SugaredLogger
	passwords        PasswordSource
	from             time.Time
	skipDirectories  map[string]bool
	skipApplications map[string]bool
	mappingOutput    io.Writer

	directories   *DirectoryMigrator
	groups        *GroupMigrator
	accounts      *AccountMigrator
	memberships   *GroupMembershipMigrator
	workflows     *DirectoryWorkflowMigrator
	organizations *OrganizationMigrator
	applications  *ApplicationMigrator
	orgMappings   *AccountStoreMappingMigrator
	appMappings   *AccountStoreMappingMigrator
	substitution  *SubstitutionResolver
}

func New(src, dst stormpath.TenantAPI, opts ...Option) (*TenantMigrator, error) {
	if src == nil || dst == nil {
		return nil, errors.New("source and destination tenants are required")
	}
	m := &TenantMigrator{
		env: &Env{
			Source:      src,
			Destination: dst,
			Logger:      zap.NewNop().Sugar(),
			Retry:       DefaultRetryPolicy,
		},
		skipDirectories:  nameSet([]string{DefaultAdminDirectory}),
		skipApplications: nameSet([]string{DefaultSystemApplication}),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}

	m.logger = m.env.Logger
	m.directories = NewDirectoryMigrator(m.env)
	m.groups = NewGroupMigrator(m.env)
	m.accounts = NewAccountMigrator(m.env)
	m.memberships = NewGroupMembershipMigrator(m.env)
	m.workflows = NewDirectoryWorkflowMigrator(m.env)
	m.organizations = NewOrganizationMigrator(m.env)
	m.applications = NewApplicationMigrator(m.env)
	m.orgMappings = NewOrganizationMappingMigrator(m.env)
	m.appMappings = NewApplicationMappingMigrator(m.env)
	m.substitution = NewSubstitutionResolver(m.env)
	m.substitution.skipDirectories = m.skipDirectories
	m.substitution.skipApplications = m.skipApplications
	return m, nil
}

// Substitutions returns the href index built by the last run.
func (m *TenantMigrator) Substitutions() []Substitution {
	return m.substitution.Index()
}

// Migrate runs the whole migration. Failures confined to one resource are
// logged and the run carries on; the returned error is either the context's,
// ErrDirectoryMissing, or a failure writing the mapping output.
func (m *TenantMigrator) Migrate(ctx context.Context) error {
	start := time.Now()
	m.logger.Infow("Starting migration", "from", m.fromString())

	if err := m.migrateDirectories(ctx); err != nil {
		return err
	}
	if err := m.migrateOrganizations(ctx); err != nil {
		return err
	}
	if err := m.migrateApplications(ctx); err != nil {
		return err
	}
	if err := m.substitution.Migrate(ctx); err != nil {
		return err
	}
	if m.mappingOutput != nil {
		if err := m.substitution.WriteCSV(m.mappingOutput); err != nil {
			return err
		}
	}

	m.env.Metrics.logSummary(m.logger)
	m.logger.Infow("Migration finished", "time", time.Since(start).Seconds())
	return nil
}

func (m *TenantMigrator) fromString() string {
	if m.from.IsZero() {
		return ""
	}
	return m.from.Format("2006-01-02")
}

// older reports whether a resource predates the from date and is therefore
// resolved but not copied.
func (m *TenantMigrator) older(createdAt *time.Time) bool {
	return !m.from.IsZero() && createdAt != nil && createdAt.Before(m.from)
}

func (m *TenantMigrator) migrateDirectories(ctx context.Context) error {
	dirs, err := call(ctx, m.env, m.logger, "Failed to list source directories", nil, func() ([]stormpath.Directory, error) {
		return m.env.Source.ListDirectories(ctx)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source directories", nil, err)
	}

	for i := range dirs {
		src := &dirs[i]
		if m.skipDirectories[src.Name] {
			m.logger.Infow("Skipping directory", "name", src.Name)
			m.env.Metrics.record(kindDirectory, outcomeSkipped)
			continue
		}
		if err := m.migrateDirectory(ctx, src); err != nil {
			return err
		}
	}
	return nil
}

func (m *TenantMigrator) migrateDirectory(ctx context.Context, src *stormpath.Directory) error {
	kv := []interface{}{"directory", src.Name}
	older := m.older(src.CreatedAt)

	var dst *stormpath.Directory
	var err error
	if older {
		m.env.Metrics.record(kindDirectory, outcomeSkipped)
		dst, err = m.directories.FindDestination(ctx, src.Name)
		if err != nil {
			if err := settle(m.logger, "Failed to search for directory", kv, err); err != nil {
				return err
			}
		}
	} else {
		dst, err = m.directories.Migrate(ctx, src)
		if err != nil {
			return err
		}
	}
	if dst == nil {
		m.logger.Warnw("Directory unavailable in destination, skipping its contents", kv...)
		return nil
	}

	kind := src.ProviderKind()
	copyGroups := kind == stormpath.ProviderCloud || kind == stormpath.ProviderSocial || kind == stormpath.ProviderSAML
	copyAccounts := kind == stormpath.ProviderCloud || kind == stormpath.ProviderSocial

	if copyGroups {
		if err := m.migrateGroups(ctx, src, dst); err != nil {
			return err
		}
	}
	if copyAccounts {
		if err := m.migrateAccounts(ctx, src, dst); err != nil {
			return err
		}
	}
	if kind != stormpath.ProviderMirror && !older {
		if err := m.workflows.Migrate(ctx, src, dst); err != nil {
			return err
		}
	}
	return nil
}

func (m *TenantMigrator) migrateGroups(ctx context.Context, src, dst *stormpath.Directory) error {
	kv := []interface{}{"directory", src.Name}
	groups, err := call(ctx, m.env, m.logger, "Failed to list source groups", kv, func() ([]stormpath.Group, error) {
		return m.env.Source.ListGroups(ctx, src.Href)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source groups", kv, err)
	}
	for i := range groups {
		if m.older(groups[i].CreatedAt) {
			m.env.Metrics.record(kindGroup, outcomeSkipped)
			continue
		}
		if _, err := m.groups.Migrate(ctx, dst, &groups[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *TenantMigrator) migrateAccounts(ctx context.Context, src, dst *stormpath.Directory) error {
	kv := []interface{}{"directory", src.Name}
	accounts, err := call(ctx, m.env, m.logger, "Failed to list source accounts", kv, func() ([]stormpath.Account, error) {
		return m.env.Source.ListAccounts(ctx, src.Href)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source accounts", kv, err)
	}

	for i := range accounts {
		account := &accounts[i]
		if m.older(account.CreatedAt) {
			m.env.Metrics.record(kindAccount, outcomeSkipped)
			continue
		}

		dstAccount, err := m.accounts.Migrate(ctx, dst, account, m.passwordHash(account))
		if err != nil {
			return err
		}
		if dstAccount == nil {
			continue
		}
		if err := m.migrateMemberships(ctx, account, dstAccount); err != nil {
			return err
		}
	}
	return nil
}

func (m *TenantMigrator) passwordHash(account *stormpath.Account) string {
	if m.passwords == nil || account.ProviderKind() != stormpath.ProviderCloud {
		return ""
	}
	hash, ok, err := m.passwords.Lookup(account.Href)
	if err != nil {
		m.logger.Warnw("Could not read password hash", append(accountKeyValues(account), "error", err)...)
		return ""
	}
	if !ok {
		return ""
	}
	return hash
}

func (m *TenantMigrator) migrateMemberships(ctx context.Context, src *stormpath.Account, dst *stormpath.Account) error {
	kv := accountKeyValues(src)
	memberships, err := call(ctx, m.env, m.logger, "Failed to list source group memberships", kv, func() ([]stormpath.GroupMembership, error) {
		return m.env.Source.ListGroupMemberships(ctx, src.Href)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source group memberships", kv, err)
	}
	for i := range memberships {
		outcome, err := m.memberships.Migrate(ctx, &memberships[i], dst)
		if err != nil {
			return err
		}
		if outcome == MembershipDirectoryMissing {
			return errors.Wrapf(ErrDirectoryMissing, "group %s of account %s", memberships[i].Group.HrefOrEmpty(), src.Href)
		}
	}
	return nil
}

func (m *TenantMigrator) migrateOrganizations(ctx context.Context) error {
	orgs, err := call(ctx, m.env, m.logger, "Failed to list source organizations", nil, func() ([]stormpath.Organization, error) {
		return m.env.Source.ListOrganizations(ctx)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source organizations", nil, err)
	}

	for i := range orgs {
		src := &orgs[i]
		kv := []interface{}{"organization", src.Name}

		var dst *stormpath.Organization
		if m.older(src.CreatedAt) {
			m.env.Metrics.record(kindOrganization, outcomeSkipped)
			dst, err = m.organizations.FindDestination(ctx, src.Name, src.NameKey)
			if err != nil {
				if err := settle(m.logger, "Failed to search for organization", kv, err); err != nil {
					return err
				}
			}
		} else {
			dst, err = m.organizations.Migrate(ctx, src)
			if err != nil {
				return err
			}
		}
		if dst == nil {
			m.logger.Warnw("Organization unavailable in destination, skipping its mappings", kv...)
			continue
		}
		if err := m.migrateMappings(ctx, m.orgMappings, src.Href, dst.Href, kv); err != nil {
			return err
		}
	}
	return nil
}

func (m *TenantMigrator) migrateApplications(ctx context.Context) error {
	apps, err := call(ctx, m.env, m.logger, "Failed to list source applications", nil, func() ([]stormpath.Application, error) {
		return m.env.Source.ListApplications(ctx)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source applications", nil, err)
	}

	for i := range apps {
		src := &apps[i]
		kv := []interface{}{"application", src.Name}
		if m.skipApplications[src.Name] {
			m.logger.Infow("Skipping application", kv...)
			m.env.Metrics.record(kindApplication, outcomeSkipped)
			continue
		}

		var dst *stormpath.Application
		if m.older(src.CreatedAt) {
			m.env.Metrics.record(kindApplication, outcomeSkipped)
			dst, err = m.applications.FindDestination(ctx, src.Name)
			if err != nil {
				if err := settle(m.logger, "Failed to search for application", kv, err); err != nil {
					return err
				}
			}
		} else {
			dst, err = m.applications.Migrate(ctx, src)
			if err != nil {
				return err
			}
		}
		if dst == nil {
			m.logger.Warnw("Application unavailable in destination, skipping its mappings", kv...)
			continue
		}
		if err := m.migrateMappings(ctx, m.appMappings, src.Href, dst.Href, kv); err != nil {
			return err
		}
	}
	return nil
}

func (m *TenantMigrator) migrateMappings(ctx context.Context, mm *AccountStoreMappingMigrator, srcHref, dstHref string, kv []interface{}) error {
	mappings, err := call(ctx, m.env, m.logger, "Failed to list source account store mappings", kv, func() ([]stormpath.AccountStoreMapping, error) {
		return m.env.Source.ListAccountStoreMappings(ctx, srcHref)
	})
	if err != nil {
		return settle(m.logger, "Failed to list source account store mappings", kv, err)
	}
	for i := range mappings {
		if _, err := mm.Migrate(ctx, dstHref, &mappings[i]); err != nil {
			return err
		}
	}
	return nil
}
