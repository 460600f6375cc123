package stormpath

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

func (c *Client) ListOrganizations(ctx context.Context) ([]Organization, error) {
	t, err := c.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	orgs, err := listAll[Organization](ctx, c, t.Organizations.HrefOrEmpty(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "listing organizations")
	}
	return orgs, nil
}

func (c *Client) GetOrganization(ctx context.Context, href string) (*Organization, error) {
	return getOptional[Organization](ctx, c, href, nil)
}

func (c *Client) SearchOrganizations(ctx context.Context, q OrganizationQuery) ([]Organization, error) {
	t, err := c.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	if q.NameKey != "" {
		params.Set("nameKey", q.NameKey)
	}
	orgs, err := listAll[Organization](ctx, c, t.Organizations.HrefOrEmpty(), params)
	if err != nil {
		return nil, errors.Wrap(err, "searching organizations")
	}
	return orgs, nil
}

func (c *Client) CreateOrganization(ctx context.Context, o *Organization) (*Organization, error) {
	var out Organization
	if _, err := c.doPOST(ctx, "/organizations", nil, o, &out); err != nil {
		return nil, errors.Wrapf(err, "creating organization %q", o.Name)
	}
	return &out, nil
}

func (c *Client) UpdateOrganization(ctx context.Context, o *Organization) (*Organization, error) {
	body := struct {
		Name        string `json:"name"`
		NameKey     string `json:"nameKey"`
		Description string `json:"description"`
		Status      Status `json:"status,omitempty"`
	}{o.Name, o.NameKey, o.Description, o.Status}
	var out Organization
	if _, err := c.doPOST(ctx, o.Href, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating organization %q", o.Name)
	}
	return &out, nil
}
