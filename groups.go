package stormpath

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

func (c *Client) ListGroups(ctx context.Context, directoryHref string) ([]Group, error) {
	groups, err := listAll[Group](ctx, c, directoryHref+"/groups", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "listing groups of %s", directoryHref)
	}
	return groups, nil
}

func (c *Client) GetGroup(ctx context.Context, href string) (*Group, error) {
	return getOptional[Group](ctx, c, href, nil)
}

func (c *Client) SearchGroups(ctx context.Context, directoryHref string, name string) ([]Group, error) {
	groups, err := listAll[Group](ctx, c, directoryHref+"/groups", url.Values{"name": {name}})
	if err != nil {
		return nil, errors.Wrapf(err, "searching groups of %s for %q", directoryHref, name)
	}
	return groups, nil
}

func (c *Client) CreateGroup(ctx context.Context, directoryHref string, g *Group) (*Group, error) {
	var out Group
	if _, err := c.doPOST(ctx, directoryHref+"/groups", nil, g, &out); err != nil {
		return nil, errors.Wrapf(err, "creating group %q", g.Name)
	}
	return &out, nil
}

func (c *Client) UpdateGroup(ctx context.Context, g *Group) (*Group, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      Status `json:"status,omitempty"`
	}{g.Name, g.Description, g.Status}
	var out Group
	if _, err := c.doPOST(ctx, g.Href, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating group %q", g.Name)
	}
	return &out, nil
}
