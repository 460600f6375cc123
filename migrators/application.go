package migrators

import (
	"context"

	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindApplication = "application"

type ApplicationMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
}

func NewApplicationMigrator(env *Env) *ApplicationMigrator {
	return &ApplicationMigrator{env: env, logger: env.named(kindApplication)}
}

// FindDestination returns the destination application called name, or nil.
func (m *ApplicationMigrator) FindDestination(ctx context.Context, name string) (*stormpath.Application, error) {
	kv := []interface{}{"name", name}
	apps, err := call(ctx, m.env, m.logger, "Failed to search for application", kv, func() ([]stormpath.Application, error) {
		return m.env.Destination.SearchApplications(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].Name == name {
			return &apps[i], nil
		}
	}
	return nil, nil
}

func (m *ApplicationMigrator) Copy(ctx context.Context, src, existing *stormpath.Application) (*stormpath.Application, error) {
	kv := []interface{}{"name", src.Name}
	data := &stormpath.Application{
		Name:        src.Name,
		Description: src.Description,
		Status:      src.Status,
	}
	if existing != nil {
		data.Href = existing.Href
		return call(ctx, m.env, m.logger, "Failed to update application", kv, func() (*stormpath.Application, error) {
			return m.env.Destination.UpdateApplication(ctx, data)
		})
	}
	return call(ctx, m.env, m.logger, "Failed to create application", kv, func() (*stormpath.Application, error) {
		return m.env.Destination.CreateApplication(ctx, data)
	})
}

func (m *ApplicationMigrator) CopyCustomData(ctx context.Context, src, dst *stormpath.Application) (stormpath.CustomData, error) {
	return m.env.copyCustomData(ctx, m.logger, []interface{}{"name", src.Name}, src.Href, dst.Href)
}

// CopyOAuthPolicy copies the access and refresh token lifetimes.
func (m *ApplicationMigrator) CopyOAuthPolicy(ctx context.Context, src, dst *stormpath.Application) (*stormpath.OAuthPolicy, error) {
	kv := []interface{}{"name", src.Name}
	sp, err := call(ctx, m.env, m.logger, "Failed to fetch source OAuth policy", kv, func() (*stormpath.OAuthPolicy, error) {
		return m.env.Source.GetOAuthPolicy(ctx, src.Href)
	})
	if err != nil || sp == nil {
		return nil, err
	}
	dp, err := call(ctx, m.env, m.logger, "Failed to fetch destination OAuth policy", kv, func() (*stormpath.OAuthPolicy, error) {
		return m.env.Destination.GetOAuthPolicy(ctx, dst.Href)
	})
	if err != nil || dp == nil {
		return nil, err
	}
	data := &stormpath.OAuthPolicy{
		Href:            dp.Href,
		AccessTokenTTL:  sp.AccessTokenTTL,
		RefreshTokenTTL: sp.RefreshTokenTTL,
	}
	return call(ctx, m.env, m.logger, "Failed to copy OAuth policy", kv, func() (*stormpath.OAuthPolicy, error) {
		return m.env.Destination.UpdateOAuthPolicy(ctx, data)
	})
}

// Migrate copies one application with its custom data and OAuth policy.
func (m *ApplicationMigrator) Migrate(ctx context.Context, src *stormpath.Application) (*stormpath.Application, error) {
	kv := []interface{}{"name", src.Name}

	existing, err := m.FindDestination(ctx, src.Name)
	if err != nil {
		m.env.Metrics.record(kindApplication, outcomeFailed)
		return nil, settle(m.logger, "Failed to search for application", kv, err)
	}
	dst, err := m.Copy(ctx, src, existing)
	if err != nil {
		m.env.Metrics.record(kindApplication, outcomeFailed)
		return nil, settle(m.logger, "Failed to copy application", kv, err)
	}
	if existing != nil {
		m.env.Metrics.record(kindApplication, outcomeUpdated)
	} else {
		m.env.Metrics.record(kindApplication, outcomeCreated)
	}

	if _, err := m.CopyCustomData(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy application custom data", kv, err); err != nil {
			return nil, err
		}
	}
	if _, err := m.CopyOAuthPolicy(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy OAuth policy", kv, err); err != nil {
			return nil, err
		}
	}

	m.logger.Infow("Copied application", "name", dst.Name, "updated", existing != nil)
	return dst, nil
}
