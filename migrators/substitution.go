package migrators

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindCustomData = "customData"

// Substitution pairs a source href with its destination counterpart. Migrated
// is empty when the source resource has no counterpart.
type Substitution struct {
	Original string
	Migrated string
}

// SubstitutionResolver repairs source hrefs that clients embedded in custom
// data. It runs once every resource has been copied: BuildIndex maps every
// source href to its destination href, and Migrate rewrites the custom data
// of every destination resource through that index. Resources of skip-listed
// directories and applications stay in the index but are never rewritten.
type SubstitutionResolver struct {
	env    *Env
	logger *zap.SugaredLogger

	directories   *DirectoryMigrator
	groups        *GroupMigrator
	accounts      *AccountMigrator
	applications  *ApplicationMigrator
	organizations *OrganizationMigrator

	skipDirectories  map[string]bool
	skipApplications map[string]bool

	index    map[string]string
	order    []string
	excluded map[string]bool
}

func NewSubstitutionResolver(env *Env) *SubstitutionResolver {
	return &SubstitutionResolver{
		env:           env,
		logger:        env.named("substitution"),
		directories:   NewDirectoryMigrator(env),
		groups:        NewGroupMigrator(env),
		accounts:      NewAccountMigrator(env),
		applications:  NewApplicationMigrator(env),
		organizations: NewOrganizationMigrator(env),
		index:         map[string]string{},
		excluded:      map[string]bool{},
	}
}

func (r *SubstitutionResolver) add(original, migrated string) {
	if original == "" {
		return
	}
	if _, ok := r.index[original]; !ok {
		r.order = append(r.order, original)
	}
	r.index[original] = migrated
}

// BuildIndex looks up the destination counterpart of every source
// application, directory, organization, group and account. A source listing
// that fails permanently is logged and left out of the index.
func (r *SubstitutionResolver) BuildIndex(ctx context.Context) error {
	apps, err := call(ctx, r.env, r.logger, "Failed to list source applications", nil, func() ([]stormpath.Application, error) {
		return r.env.Source.ListApplications(ctx)
	})
	if err != nil {
		if err := settle(r.logger, "Failed to list source applications", nil, err); err != nil {
			return err
		}
	}
	for i := range apps {
		dst, err := r.applications.FindDestination(ctx, apps[i].Name)
		if err != nil {
			if err := settle(r.logger, "Failed to resolve application", []interface{}{"name", apps[i].Name}, err); err != nil {
				return err
			}
		}
		r.add(apps[i].Href, hrefOf(dst))
		if r.skipApplications[apps[i].Name] {
			r.excluded[apps[i].Href] = true
		}
	}

	dirs, err := call(ctx, r.env, r.logger, "Failed to list source directories", nil, func() ([]stormpath.Directory, error) {
		return r.env.Source.ListDirectories(ctx)
	})
	if err != nil {
		if err := settle(r.logger, "Failed to list source directories", nil, err); err != nil {
			return err
		}
	}
	dstDirs := make([]*stormpath.Directory, len(dirs))
	for i := range dirs {
		dst, err := r.directories.FindDestination(ctx, dirs[i].Name)
		if err != nil {
			if err := settle(r.logger, "Failed to resolve directory", []interface{}{"name", dirs[i].Name}, err); err != nil {
				return err
			}
		}
		dstDirs[i] = dst
		r.add(dirs[i].Href, hrefOf(dst))
		if r.skipDirectories[dirs[i].Name] {
			r.excluded[dirs[i].Href] = true
		}
	}

	orgs, err := call(ctx, r.env, r.logger, "Failed to list source organizations", nil, func() ([]stormpath.Organization, error) {
		return r.env.Source.ListOrganizations(ctx)
	})
	if err != nil {
		if err := settle(r.logger, "Failed to list source organizations", nil, err); err != nil {
			return err
		}
	}
	for i := range orgs {
		dst, err := r.organizations.FindDestination(ctx, orgs[i].Name, orgs[i].NameKey)
		if err != nil {
			if err := settle(r.logger, "Failed to resolve organization", []interface{}{"name", orgs[i].Name}, err); err != nil {
				return err
			}
		}
		r.add(orgs[i].Href, hrefOf(dst))
	}

	for i := range dirs {
		if err := r.indexGroups(ctx, &dirs[i], dstDirs[i]); err != nil {
			return err
		}
	}
	for i := range dirs {
		if err := r.indexAccounts(ctx, &dirs[i], dstDirs[i]); err != nil {
			return err
		}
	}

	r.logger.Infow("Built substitution index", "size", len(r.order))
	return nil
}

func (r *SubstitutionResolver) indexGroups(ctx context.Context, src, dst *stormpath.Directory) error {
	kv := []interface{}{"directory", src.Name}
	groups, err := call(ctx, r.env, r.logger, "Failed to list source groups", kv, func() ([]stormpath.Group, error) {
		return r.env.Source.ListGroups(ctx, src.Href)
	})
	if err != nil {
		return settle(r.logger, "Failed to list source groups", kv, err)
	}
	for i := range groups {
		var found *stormpath.Group
		if dst != nil {
			found, err = r.groups.FindDestination(ctx, dst, groups[i].Name)
			if err != nil {
				if err := settle(r.logger, "Failed to resolve group", append(kv, "name", groups[i].Name), err); err != nil {
					return err
				}
			}
		}
		r.add(groups[i].Href, hrefOf(found))
		if r.skipDirectories[src.Name] {
			r.excluded[groups[i].Href] = true
		}
	}
	return nil
}

func (r *SubstitutionResolver) indexAccounts(ctx context.Context, src, dst *stormpath.Directory) error {
	kv := []interface{}{"directory", src.Name}
	accounts, err := call(ctx, r.env, r.logger, "Failed to list source accounts", kv, func() ([]stormpath.Account, error) {
		return r.env.Source.ListAccounts(ctx, src.Href)
	})
	if err != nil {
		return settle(r.logger, "Failed to list source accounts", kv, err)
	}
	for i := range accounts {
		var found *stormpath.Account
		if dst != nil {
			found, err = r.accounts.FindDestination(ctx, dst, &accounts[i])
			if err != nil {
				if err := settle(r.logger, "Failed to resolve account", accountKeyValues(&accounts[i]), err); err != nil {
					return err
				}
			}
		}
		r.add(accounts[i].Href, hrefOf(found))
		if r.skipDirectories[src.Name] {
			r.excluded[accounts[i].Href] = true
		}
	}
	return nil
}

// hrefOf returns the href of a possibly nil resource.
func hrefOf(resource interface{}) string {
	switch v := resource.(type) {
	case *stormpath.Directory:
		if v != nil {
			return v.Href
		}
	case *stormpath.Group:
		if v != nil {
			return v.Href
		}
	case *stormpath.Account:
		if v != nil {
			return v.Href
		}
	case *stormpath.Application:
		if v != nil {
			return v.Href
		}
	case *stormpath.Organization:
		if v != nil {
			return v.Href
		}
	}
	return ""
}

// Index returns the substitutions in the order they were discovered.
func (r *SubstitutionResolver) Index() []Substitution {
	out := make([]Substitution, 0, len(r.order))
	for _, original := range r.order {
		out = append(out, Substitution{Original: original, Migrated: r.index[original]})
	}
	return out
}

// Resolve returns the destination href of a source href. Unresolved and
// unknown hrefs report false.
func (r *SubstitutionResolver) Resolve(original string) (string, bool) {
	migrated := r.index[original]
	return migrated, migrated != ""
}

// Rewrite replaces resolved source hrefs found in the keys or string values
// of data, descending into nested objects and lists. It returns the rewritten
// copy and the top-level keys that were renamed away; changed is false when
// nothing matched.
func (r *SubstitutionResolver) Rewrite(data stormpath.CustomData) (out stormpath.CustomData, staleKeys []string, changed bool) {
	out = make(stormpath.CustomData, len(data))
	for k, v := range data {
		nv, vChanged := r.rewriteValue(v)
		if vChanged {
			changed = true
		}
		if nk, ok := r.Resolve(k); ok {
			out[nk] = nv
			staleKeys = append(staleKeys, k)
			changed = true
			continue
		}
		out[k] = nv
	}
	return out, staleKeys, changed
}

func (r *SubstitutionResolver) rewriteValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case string:
		if nv, ok := r.Resolve(val); ok {
			return nv, true
		}
		return val, false
	case map[string]interface{}:
		out, _, changed := r.Rewrite(val)
		return map[string]interface{}(out), changed
	case stormpath.CustomData:
		out, _, changed := r.Rewrite(val)
		return out, changed
	case []interface{}:
		out := make([]interface{}, len(val))
		changed := false
		for i, e := range val {
			ne, c := r.rewriteValue(e)
			out[i] = ne
			changed = changed || c
		}
		return out, changed
	}
	return v, false
}

// WriteCSV writes the index with an original_href,migrated_href header.
func (r *SubstitutionResolver) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"original_href", "migrated_href"}); err != nil {
		return errors.Wrap(err, "writing mapping header")
	}
	for _, s := range r.Index() {
		if err := cw.Write([]string{s.Original, s.Migrated}); err != nil {
			return errors.Wrap(err, "writing mapping row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "writing mappings")
}

// Migrate builds the index and rewrites the custom data of every resolved
// destination resource this run copied. Each resource is persisted on its
// own.
func (r *SubstitutionResolver) Migrate(ctx context.Context) error {
	if err := r.BuildIndex(ctx); err != nil {
		return err
	}

	rewritten := 0
	for _, original := range r.order {
		href := r.index[original]
		if href == "" || r.excluded[original] {
			continue
		}
		ok, err := r.rewriteResource(ctx, href)
		if err != nil {
			r.env.Metrics.record(kindCustomData, outcomeFailed)
			if err := settle(r.logger, "Failed to rewrite custom data", []interface{}{"href", href}, err); err != nil {
				return err
			}
			continue
		}
		if ok {
			rewritten++
			r.env.Metrics.record(kindCustomData, outcomeRewritten)
		}
	}
	r.logger.Infow("Rewrote custom data references", "resources", rewritten)
	return nil
}

func (r *SubstitutionResolver) rewriteResource(ctx context.Context, href string) (bool, error) {
	kv := []interface{}{"href", href}
	data, err := call(ctx, r.env, r.logger, "Failed to fetch custom data", kv, func() (stormpath.CustomData, error) {
		return r.env.Destination.GetCustomData(ctx, href)
	})
	if err != nil {
		return false, err
	}
	out, staleKeys, changed := r.Rewrite(Sanitize(data))
	if !changed {
		return false, nil
	}

	if _, err := call(ctx, r.env, r.logger, "Failed to save custom data", kv, func() (stormpath.CustomData, error) {
		return r.env.Destination.UpdateCustomData(ctx, href, Sanitize(out))
	}); err != nil {
		return false, err
	}
	for _, key := range staleKeys {
		key := key
		if err := r.env.retry(ctx, r.logger, "Failed to delete custom data field", append(kv, "key", key), func() error {
			return r.env.Destination.DeleteCustomDataField(ctx, href, key)
		}); err != nil {
			return false, err
		}
	}
	r.logger.Debugw("Rewrote custom data", append(kv, "renamedKeys", len(staleKeys))...)
	return true, nil
}
