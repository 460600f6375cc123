package stormpath

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
)

var expandProvider = url.Values{"expand": {"provider"}}

func (c *Client) ListDirectories(ctx context.Context) ([]Directory, error) {
	t, err := c.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	dirs, err := listAll[Directory](ctx, c, t.Directories.HrefOrEmpty(), expandProvider)
	if err != nil {
		return nil, errors.Wrap(err, "listing directories")
	}
	return c.expandAgents(ctx, dirs)
}

func (c *Client) GetDirectory(ctx context.Context, href string) (*Directory, error) {
	dir, err := getOptional[Directory](ctx, c, href, expandProvider)
	if err != nil || dir == nil {
		return dir, err
	}
	if err := c.expandAgent(ctx, dir); err != nil {
		return nil, err
	}
	return dir, nil
}

func (c *Client) SearchDirectories(ctx context.Context, name string) ([]Directory, error) {
	t, err := c.CurrentTenant(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{"name": {name}, "expand": {"provider"}}
	dirs, err := listAll[Directory](ctx, c, t.Directories.HrefOrEmpty(), params)
	if err != nil {
		return nil, errors.Wrapf(err, "searching directories for %q", name)
	}
	return c.expandAgents(ctx, dirs)
}

func (c *Client) CreateDirectory(ctx context.Context, d *Directory) (*Directory, error) {
	var out Directory
	if _, err := c.doPOST(ctx, "/directories", expandProvider, d, &out); err != nil {
		return nil, errors.Wrapf(err, "creating directory %q", d.Name)
	}
	return &out, nil
}

// UpdateDirectory saves the mutable profile of an existing directory. The
// provider is immutable once a directory exists and is never sent.
func (c *Client) UpdateDirectory(ctx context.Context, d *Directory) (*Directory, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Status      Status `json:"status,omitempty"`
	}{d.Name, d.Description, d.Status}
	var out Directory
	if _, err := c.doPOST(ctx, d.Href, expandProvider, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating directory %q", d.Name)
	}
	return &out, nil
}

func (c *Client) expandAgents(ctx context.Context, dirs []Directory) ([]Directory, error) {
	for i := range dirs {
		if err := c.expandAgent(ctx, &dirs[i]); err != nil {
			return nil, err
		}
	}
	return dirs, nil
}

// expandAgent loads the agent configuration of mirror directories, which the
// provider only links to.
func (c *Client) expandAgent(ctx context.Context, d *Directory) error {
	p := d.Provider
	if p == nil || p.Agent == nil || p.Agent.Config != nil || p.Agent.Href == "" {
		return nil
	}
	agent, err := getOptional[Agent](ctx, c, p.Agent.Href, nil)
	if err != nil {
		return errors.Wrapf(err, "fetching agent for directory %q", d.Name)
	}
	if agent != nil {
		p.Agent = agent
	}
	return nil
}

func (c *Client) GetPasswordPolicy(ctx context.Context, directoryHref string) (*PasswordPolicy, error) {
	dir, err := c.requireDirectory(ctx, directoryHref)
	if err != nil {
		return nil, err
	}
	return getLinked[PasswordPolicy](ctx, c, dir.PasswordPolicy)
}

func (c *Client) UpdatePasswordPolicy(ctx context.Context, p *PasswordPolicy) (*PasswordPolicy, error) {
	body := struct {
		ResetTokenTTL           int    `json:"resetTokenTtl"`
		ResetEmailStatus        Status `json:"resetEmailStatus,omitempty"`
		ResetSuccessEmailStatus Status `json:"resetSuccessEmailStatus,omitempty"`
	}{p.ResetTokenTTL, p.ResetEmailStatus, p.ResetSuccessEmailStatus}
	var out PasswordPolicy
	if _, err := c.doPOST(ctx, p.Href, nil, body, &out); err != nil {
		return nil, errors.Wrap(err, "updating password policy")
	}
	return &out, nil
}

func (c *Client) GetPasswordStrength(ctx context.Context, directoryHref string) (*PasswordStrength, error) {
	policy, err := c.GetPasswordPolicy(ctx, directoryHref)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, nil
	}
	return getLinked[PasswordStrength](ctx, c, policy.Strength)
}

func (c *Client) UpdatePasswordStrength(ctx context.Context, s *PasswordStrength) (*PasswordStrength, error) {
	body := *s
	body.Href = ""
	var out PasswordStrength
	if _, err := c.doPOST(ctx, s.Href, nil, body, &out); err != nil {
		return nil, errors.Wrap(err, "updating password strength")
	}
	return &out, nil
}

func (c *Client) GetAccountCreationPolicy(ctx context.Context, directoryHref string) (*AccountCreationPolicy, error) {
	dir, err := c.requireDirectory(ctx, directoryHref)
	if err != nil {
		return nil, err
	}
	return getLinked[AccountCreationPolicy](ctx, c, dir.AccountCreationPolicy)
}

func (c *Client) UpdateAccountCreationPolicy(ctx context.Context, p *AccountCreationPolicy) (*AccountCreationPolicy, error) {
	body := struct {
		VerificationEmailStatus        Status `json:"verificationEmailStatus,omitempty"`
		VerificationSuccessEmailStatus Status `json:"verificationSuccessEmailStatus,omitempty"`
		WelcomeEmailStatus             Status `json:"welcomeEmailStatus,omitempty"`
	}{p.VerificationEmailStatus, p.VerificationSuccessEmailStatus, p.WelcomeEmailStatus}
	var out AccountCreationPolicy
	if _, err := c.doPOST(ctx, p.Href, nil, body, &out); err != nil {
		return nil, errors.Wrap(err, "updating account creation policy")
	}
	return &out, nil
}

func (c *Client) ListEmailTemplates(ctx context.Context, directoryHref string, kind TemplateKind) ([]EmailTemplate, error) {
	var link *Link
	switch kind {
	case TemplateReset, TemplateResetSuccess:
		policy, err := c.GetPasswordPolicy(ctx, directoryHref)
		if err != nil || policy == nil {
			return nil, err
		}
		link = policy.ResetEmailTemplates
		if kind == TemplateResetSuccess {
			link = policy.ResetSuccessEmailTemplates
		}
	case TemplateVerification, TemplateVerificationSuccess, TemplateWelcome:
		policy, err := c.GetAccountCreationPolicy(ctx, directoryHref)
		if err != nil || policy == nil {
			return nil, err
		}
		switch kind {
		case TemplateVerification:
			link = policy.VerificationEmailTemplates
		case TemplateVerificationSuccess:
			link = policy.VerificationSuccessEmailTemplates
		default:
			link = policy.WelcomeEmailTemplates
		}
	default:
		return nil, errors.Errorf("unknown email template kind %q", kind)
	}
	if link == nil {
		return nil, nil
	}
	templates, err := listAll[EmailTemplate](ctx, c, link.Href, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", kind)
	}
	return templates, nil
}

func (c *Client) UpdateEmailTemplate(ctx context.Context, t *EmailTemplate) (*EmailTemplate, error) {
	body := *t
	body.Href = ""
	var out EmailTemplate
	if _, err := c.doPOST(ctx, t.Href, nil, body, &out); err != nil {
		return nil, errors.Wrapf(err, "updating email template %q", t.Name)
	}
	return &out, nil
}

func (c *Client) requireDirectory(ctx context.Context, href string) (*Directory, error) {
	var dir Directory
	if _, err := c.doGET(ctx, href, nil, &dir); err != nil {
		return nil, errors.Wrapf(err, "fetching directory %s", href)
	}
	return &dir, nil
}
