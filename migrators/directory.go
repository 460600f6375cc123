package migrators

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindDirectory = "directory"

type DirectoryMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
}

func NewDirectoryMigrator(env *Env) *DirectoryMigrator {
	return &DirectoryMigrator{env: env, logger: env.named(kindDirectory)}
}

// FindDestination returns the destination directory called name, or nil.
func (m *DirectoryMigrator) FindDestination(ctx context.Context, name string) (*stormpath.Directory, error) {
	kv := []interface{}{"name", name}
	dirs, err := call(ctx, m.env, m.logger, "Failed to search for directory", kv, func() ([]stormpath.Directory, error) {
		return m.env.Destination.SearchDirectories(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	for i := range dirs {
		if dirs[i].Name == name {
			return &dirs[i], nil
		}
	}
	return nil, nil
}

// Copy creates src in the destination tenant, or updates existing in place
// when the directory is already there.
func (m *DirectoryMigrator) Copy(ctx context.Context, src, existing *stormpath.Directory) (*stormpath.Directory, error) {
	kv := []interface{}{"name", src.Name}
	data := &stormpath.Directory{
		Name:        src.Name,
		Description: src.Description,
		Status:      src.Status,
	}

	if existing != nil {
		data.Href = existing.Href
		return call(ctx, m.env, m.logger, "Failed to update directory", kv, func() (*stormpath.Directory, error) {
			return m.env.Destination.UpdateDirectory(ctx, data)
		})
	}

	if src.Provider != nil && src.ProviderKind() != stormpath.ProviderCloud {
		data.Provider = portableProvider(src.Provider)
	}
	return call(ctx, m.env, m.logger, "Failed to create directory", kv, func() (*stormpath.Directory, error) {
		return m.env.Destination.CreateDirectory(ctx, data)
	})
}

// portableProvider copies the provider settings that can be replayed. The
// agent bind password of a mirror directory is never readable, so a random
// placeholder takes its place and the operator has to set the real one.
func portableProvider(p *stormpath.Provider) *stormpath.Provider {
	out := &stormpath.Provider{
		ProviderID:                p.ProviderID,
		ClientID:                  p.ClientID,
		ClientSecret:              p.ClientSecret,
		RedirectURI:               p.RedirectURI,
		SSOLoginURL:               p.SSOLoginURL,
		SSOLogoutURL:              p.SSOLogoutURL,
		EncodedX509SigningCert:    p.EncodedX509SigningCert,
		RequestSignatureAlgorithm: p.RequestSignatureAlgorithm,
	}
	if p.Kind() != stormpath.ProviderMirror || p.Agent == nil || p.Agent.Config == nil {
		return out
	}

	cfg := *p.Agent.Config
	cfg.AgentUserDNPassword = uuid.NewString()
	if cfg.AccountConfig != nil {
		ac := *cfg.AccountConfig
		cfg.AccountConfig = &ac
	}
	if cfg.GroupConfig != nil {
		gc := *cfg.GroupConfig
		cfg.GroupConfig = &gc
	}
	out.Agent = &stormpath.Agent{Config: &cfg}
	return out
}

func (m *DirectoryMigrator) CopyCustomData(ctx context.Context, src, dst *stormpath.Directory) (stormpath.CustomData, error) {
	return m.env.copyCustomData(ctx, m.logger, []interface{}{"name", src.Name}, src.Href, dst.Href)
}

// CopyStrength copies the writable password strength rules. Mirror
// directories delegate authentication and are left alone.
func (m *DirectoryMigrator) CopyStrength(ctx context.Context, src, dst *stormpath.Directory) (*stormpath.PasswordStrength, error) {
	if src.ProviderKind() == stormpath.ProviderMirror {
		return nil, nil
	}
	kv := []interface{}{"name", src.Name}
	ss, err := call(ctx, m.env, m.logger, "Failed to fetch source password strength", kv, func() (*stormpath.PasswordStrength, error) {
		return m.env.Source.GetPasswordStrength(ctx, src.Href)
	})
	if err != nil || ss == nil {
		return nil, err
	}
	ds, err := call(ctx, m.env, m.logger, "Failed to fetch destination password strength", kv, func() (*stormpath.PasswordStrength, error) {
		return m.env.Destination.GetPasswordStrength(ctx, dst.Href)
	})
	if err != nil || ds == nil {
		return nil, err
	}

	ds.MinLength = ss.MinLength
	ds.MaxLength = ss.MaxLength
	ds.MinLowerCase = ss.MinLowerCase
	ds.MinUpperCase = ss.MinUpperCase
	ds.MinNumeric = ss.MinNumeric
	ds.MinSymbol = ss.MinSymbol
	ds.MinDiacritic = ss.MinDiacritic
	ds.PreventReuse = ss.PreventReuse

	return call(ctx, m.env, m.logger, "Failed to copy password strength", kv, func() (*stormpath.PasswordStrength, error) {
		return m.env.Destination.UpdatePasswordStrength(ctx, ds)
	})
}

// Migrate copies one directory with its custom data and password strength.
// Workflows are copied separately, after the accounts, so migrated users are
// not emailed. A nil result means the directory could not be copied.
func (m *DirectoryMigrator) Migrate(ctx context.Context, src *stormpath.Directory) (*stormpath.Directory, error) {
	kv := []interface{}{"name", src.Name}

	existing, err := m.FindDestination(ctx, src.Name)
	if err != nil {
		m.env.Metrics.record(kindDirectory, outcomeFailed)
		return nil, settle(m.logger, "Failed to search for directory", kv, err)
	}
	dst, err := m.Copy(ctx, src, existing)
	if err != nil {
		m.env.Metrics.record(kindDirectory, outcomeFailed)
		return nil, settle(m.logger, "Failed to copy directory", kv, err)
	}
	if existing != nil {
		m.env.Metrics.record(kindDirectory, outcomeUpdated)
	} else {
		m.env.Metrics.record(kindDirectory, outcomeCreated)
	}

	if _, err := m.CopyCustomData(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy directory custom data", kv, err); err != nil {
			return nil, err
		}
	}
	if _, err := m.CopyStrength(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy password strength", kv, err); err != nil {
			return nil, err
		}
	}

	m.logger.Infow("Copied directory", "name", dst.Name, "provider", src.ProviderKind().String(), "updated", existing != nil)
	return dst, nil
}
