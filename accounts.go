package stormpath

import (
	"context"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

func (c *Client) ListAccounts(ctx context.Context, directoryHref string) ([]Account, error) {
	accounts, err := listAll[Account](ctx, c, directoryHref+"/accounts", url.Values{"expand": {"providerData"}})
	if err != nil {
		return nil, errors.Wrapf(err, "listing accounts of %s", directoryHref)
	}
	return accounts, nil
}

func (c *Client) GetAccount(ctx context.Context, href string) (*Account, error) {
	return getOptional[Account](ctx, c, href, url.Values{"expand": {"providerData"}})
}

// SearchAccounts matches on every non-empty field of q.
func (c *Client) SearchAccounts(ctx context.Context, directoryHref string, q AccountQuery) ([]Account, error) {
	params := url.Values{"expand": {"providerData"}}
	if q.Username != "" {
		params.Set("username", q.Username)
	}
	if q.Email != "" {
		params.Set("email", q.Email)
	}
	accounts, err := listAll[Account](ctx, c, directoryHref+"/accounts", params)
	if err != nil {
		return nil, errors.Wrapf(err, "searching accounts of %s", directoryHref)
	}
	return accounts, nil
}

func (c *Client) CreateAccount(ctx context.Context, directoryHref string, a *Account, opts CreateAccountOptions) (*Account, error) {
	params := url.Values{}
	if opts.PasswordFormat != "" {
		params.Set("passwordFormat", opts.PasswordFormat)
	}
	if opts.RegistrationWorkflowEnabled != nil {
		params.Set("registrationWorkflowEnabled", strconv.FormatBool(*opts.RegistrationWorkflowEnabled))
	}
	var out Account
	if _, err := c.doPOST(ctx, directoryHref+"/accounts", params, a, &out); err != nil {
		return nil, errors.Wrapf(err, "creating account %q", accountLabel(a))
	}
	return &out, nil
}

// UpdateAccount saves the profile fields of an existing account. Credentials
// and provider data are never part of an update.
func (c *Client) UpdateAccount(ctx context.Context, a *Account) (*Account, error) {
	body := struct {
		Username   string `json:"username,omitempty"`
		Email      string `json:"email,omitempty"`
		GivenName  string `json:"givenName,omitempty"`
		MiddleName string `json:"middleName"`
		Surname    string `json:"surname,omitempty"`
		Status     Status `json:"status,omitempty"`
	}{a.Username, a.Email, a.GivenName, a.MiddleName, a.Surname, a.Status}
	var out Account
	if _, err := c.doPOST(ctx, a.Href, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating account %q", accountLabel(a))
	}
	return &out, nil
}

func (c *Client) ListGroupMemberships(ctx context.Context, accountHref string) ([]GroupMembership, error) {
	memberships, err := listAll[GroupMembership](ctx, c, accountHref+"/groupMemberships", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "listing group memberships of %s", accountHref)
	}
	return memberships, nil
}

func (c *Client) CreateGroupMembership(ctx context.Context, accountHref, groupHref string) (*GroupMembership, error) {
	body := GroupMembership{
		Account: &Link{Href: accountHref},
		Group:   &Link{Href: groupHref},
	}
	var out GroupMembership
	if _, err := c.doPOST(ctx, "/groupMemberships", nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "adding %s to %s", accountHref, groupHref)
	}
	return &out, nil
}

func accountLabel(a *Account) string {
	if a.Username != "" {
		return a.Username
	}
	if a.Email != "" {
		return a.Email
	}
	if a.ProviderData != nil {
		return a.ProviderData.ProviderID
	}
	return a.Href
}
