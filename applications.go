package stormpath

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

func (c *Client) ListApplications(ctx context.Context) ([]Application, error) {
	t, err := c.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := listAll[Application](ctx, c, t.Applications.HrefOrEmpty(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing applications")
	}
	return apps, nil
}

func (c *Client) SearchApplications(ctx context.Context, name string) ([]Application, error) {
	t, err := c.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	apps, err := listAll[Application](ctx, c, t.Applications.HrefOrEmpty(), url.Values{"name": {name}})
	if err != nil {
		return nil, errors.Wrapf(err, "searching applications for %q", name)
	}
	return apps, nil
}

func (c *Client) CreateApplication(ctx context.Context, a *Application) (*Application, error) {
	var out Application
	if _, err := c.doPOST(ctx, "/applications", nil, a, &out); err != nil {
		return nil, errors.Wrapf(err, "creating application %q", a.Name)
	}
	return &out, nil
}

func (c *Client) UpdateApplication(ctx context.Context, a *Application) (*Application, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      Status `json:"status,omitempty"`
	}{a.Name, a.Description, a.Status}
	var out Application
	if _, err := c.doPOST(ctx, a.Href, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating application %q", a.Name)
	}
	return &out, nil
}

func (c *Client) GetOAuthPolicy(ctx context.Context, applicationHref string) (*OAuthPolicy, error) {
	var app Application
	if _, err := c.doGET(ctx, applicationHref, nil, &app); err != nil {
		return nil, errors.Wrapf(err, "fetching application %s", applicationHref)
	}
	return getLinked[OAuthPolicy](ctx, c, app.OAuthPolicy)
}

func (c *Client) UpdateOAuthPolicy(ctx context.Context, p *OAuthPolicy) (*OAuthPolicy, error) {
	body := *p
	body.Href = ""
	var out OAuthPolicy
	if _, err := c.doPOST(ctx, p.Href, nil, body, &out); err != nil {
		return nil, errors.Wrap(err, "updating OAuth policy")
	}
	return &out, nil
}

func (c *Client) ListAccountStoreMappings(ctx context.Context, parentHref string) ([]AccountStoreMapping, error) {
	mappings, err := listAll[AccountStoreMapping](ctx, c, parentHref+"/accountStoreMappings", url.Values{"orderBy": {"listIndex"}})
	if err != nil {
		return nil, errors.Wrapf(err, "listing account store mappings of %s", parentHref)
	}
	return mappings, nil
}

// CreateAccountStoreMapping posts to the application or organization mapping
// collection depending on which parent the mapping names.
func (c *Client) CreateAccountStoreMapping(ctx context.Context, m *AccountStoreMapping) (*AccountStoreMapping, error) {
	path := "/accountStoreMappings"
	if m.Application == nil {
		if m.Organization == nil {
			return nil, errors.New("account store mapping has no parent")
		}
		path = "/organizationAccountStoreMappings"
	}
	body := *m
	body.Href = ""
	var out AccountStoreMapping
	if _, err := c.doPOST(ctx, path, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "mapping %s to %s", m.AccountStore.Href, m.Parent())
	}
	return &out, nil
}
