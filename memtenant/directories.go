package memtenant

import (
	"context"

	"github.com/hashicorp/go-memdb"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const (
	passwordPolicyKey        = "passwordPolicy"
	passwordStrengthKey      = "passwordStrength"
	accountCreationPolicyKey = "accountCreationPolicy"
	oauthPolicyKey           = "oAuthPolicy"
)

func (s *Store) ListDirectories(ctx context.Context) ([]stormpath.Directory, error) {
	if err := s.enter("ListDirectories"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Directory](txn, directoriesTable, parentIndex, s.tenantHref)
}

func (s *Store) GetDirectory(ctx context.Context, href string) (*stormpath.Directory, error) {
	if err := s.enter("GetDirectory"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return getObj[stormpath.Directory](txn, directoriesTable, href)
}

func (s *Store) SearchDirectories(ctx context.Context, name string) ([]stormpath.Directory, error) {
	if err := s.enter("SearchDirectories"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Directory](txn, directoriesTable, nameIndex, scoped(s.tenantHref, name))
}

// CreateDirectory stores d together with its default password policy,
// password strength, account creation policy and one template per workflow
// email. A missing provider makes a cloud directory.
func (s *Store) CreateDirectory(ctx context.Context, d *stormpath.Directory) (*stormpath.Directory, error) {
	if err := s.enter("CreateDirectory"); err != nil {
		return nil, err
	}
	if d.Name == "" {
		return nil, invalid("Directory name is required.")
	}

	dir := clone(d)
	dir.Href = s.href("directories")
	if dir.Provider == nil {
		dir.Provider = &stormpath.Provider{ProviderID: stormpath.CloudProviderID}
	}
	dir.Provider.Href = dir.Href + "/provider"
	if dir.Provider.Agent != nil {
		dir.Provider.Agent.Href = s.href("agents")
	}
	if dir.Status == "" {
		dir.Status = stormpath.StatusEnabled
	}
	now := s.timestamp()
	if dir.CreatedAt == nil {
		dir.CreatedAt = now
	}
	dir.ModifiedAt = now
	dir.CustomData = &stormpath.Link{Href: dir.Href + "/customData"}
	dir.Groups = &stormpath.Link{Href: dir.Href + "/groups"}
	dir.Accounts = &stormpath.Link{Href: dir.Href + "/accounts"}

	passwordPolicy := &stormpath.PasswordPolicy{
		Href:                    s.href("passwordPolicies"),
		ResetTokenTTL:           24,
		ResetEmailStatus:        stormpath.StatusEnabled,
		ResetSuccessEmailStatus: stormpath.StatusEnabled,
	}
	passwordPolicy.Strength = &stormpath.Link{Href: passwordPolicy.Href + "/strength"}
	passwordPolicy.ResetEmailTemplates = &stormpath.Link{Href: passwordPolicy.Href + "/resetEmailTemplates"}
	passwordPolicy.ResetSuccessEmailTemplates = &stormpath.Link{Href: passwordPolicy.Href + "/resetSuccessEmailTemplates"}
	strength := &stormpath.PasswordStrength{
		Href:         passwordPolicy.Strength.Href,
		MinLength:    8,
		MaxLength:    100,
		MinLowerCase: 1,
		MinUpperCase: 1,
		MinNumeric:   1,
	}
	creationPolicy := &stormpath.AccountCreationPolicy{
		Href:                           s.href("accountCreationPolicies"),
		VerificationEmailStatus:        stormpath.StatusDisabled,
		VerificationSuccessEmailStatus: stormpath.StatusDisabled,
		WelcomeEmailStatus:             stormpath.StatusDisabled,
	}
	creationPolicy.VerificationEmailTemplates = &stormpath.Link{Href: creationPolicy.Href + "/verificationEmailTemplates"}
	creationPolicy.VerificationSuccessEmailTemplates = &stormpath.Link{Href: creationPolicy.Href + "/verificationSuccessEmailTemplates"}
	creationPolicy.WelcomeEmailTemplates = &stormpath.Link{Href: creationPolicy.Href + "/welcomeEmailTemplates"}
	dir.PasswordPolicy = &stormpath.Link{Href: passwordPolicy.Href}
	dir.AccountCreationPolicy = &stormpath.Link{Href: creationPolicy.Href}

	err := s.write(func(txn *memdb.Txn) error {
		existing, err := first(txn, directoriesTable, nameIndex, scoped(s.tenantHref, dir.Name))
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("Directory name %q is already in use.", dir.Name)
		}
		if err := s.insert(txn, directoriesTable, &row{
			Href:    dir.Href,
			Parent:  s.tenantHref,
			NameKey: scoped(s.tenantHref, dir.Name),
			Obj:     dir,
		}); err != nil {
			return err
		}
		for key, obj := range map[string]interface{}{
			passwordPolicyKey:        passwordPolicy,
			passwordStrengthKey:      strength,
			accountCreationPolicyKey: creationPolicy,
		} {
			if err := s.insert(txn, policiesTable, &row{
				Href:    hrefOfPolicy(obj),
				Parent:  dir.Href,
				NameKey: scoped(dir.Href, key),
				Obj:     obj,
			}); err != nil {
				return err
			}
		}
		for _, kind := range append(append([]stormpath.TemplateKind{}, stormpath.AccountCreationTemplates...), stormpath.PasswordResetTemplates...) {
			if err := s.insert(txn, templatesTable, &row{
				Href:    s.href("emailTemplates"),
				Parent:  dir.Href,
				NameKey: scoped(dir.Href, string(kind)),
				Obj:     defaultTemplate(kind),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clone(dir), nil
}

func hrefOfPolicy(obj interface{}) string {
	switch p := obj.(type) {
	case *stormpath.PasswordPolicy:
		return p.Href
	case *stormpath.PasswordStrength:
		return p.Href
	case *stormpath.AccountCreationPolicy:
		return p.Href
	case *stormpath.OAuthPolicy:
		return p.Href
	}
	return ""
}

func defaultTemplate(kind stormpath.TemplateKind) *stormpath.EmailTemplate {
	return &stormpath.EmailTemplate{
		Name:             "Default " + string(kind),
		FromName:         "Identity Service",
		FromEmailAddress: "change-me@example.com",
		Subject:          "Your account",
		TextBody:         "${url}",
		HTMLBody:         "<p>${url}</p>",
		MimeType:         "text/plain",
		DefaultModel:     &stormpath.EmailTemplateModel{LinkBaseURL: "https://example.com"},
	}
}

// UpdateDirectory saves name, description and status. The provider cannot
// change once a directory exists.
func (s *Store) UpdateDirectory(ctx context.Context, d *stormpath.Directory) (*stormpath.Directory, error) {
	if err := s.enter("UpdateDirectory"); err != nil {
		return nil, err
	}
	var out *stormpath.Directory
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, directoriesTable, idIndex, d.Href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(d.Href)
		}
		if d.Name != "" {
			other, err := first(txn, directoriesTable, nameIndex, scoped(s.tenantHref, d.Name))
			if err != nil {
				return err
			}
			if other != nil && other.Href != d.Href {
				return conflict("Directory name %q is already in use.", d.Name)
			}
		}
		dir := clone(r.Obj.(*stormpath.Directory))
		if d.Name != "" {
			dir.Name = d.Name
		}
		dir.Description = d.Description
		if d.Status != "" {
			dir.Status = d.Status
		}
		dir.ModifiedAt = s.timestamp()
		out = clone(dir)
		return s.replace(txn, directoriesTable, r, dir, scoped(s.tenantHref, dir.Name), "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func policyOf[T any](s *Store, ownerHref, key string) (*T, error) {
	txn := s.read()
	defer txn.Abort()
	r, err := first(txn, policiesTable, nameIndex, scoped(ownerHref, key))
	if err != nil || r == nil {
		return nil, err
	}
	return clone(r.Obj.(*T)), nil
}

// updatePolicy applies fn to a copy of the stored policy at href.
func updatePolicy[T any](s *Store, href string, fn func(stored *T)) (*T, error) {
	var out *T
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, policiesTable, idIndex, href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(href)
		}
		stored, ok := r.Obj.(*T)
		if !ok {
			return invalid("Resource %s has a different type.", href)
		}
		p := clone(stored)
		fn(p)
		out = clone(p)
		return s.replace(txn, policiesTable, r, p, r.NameKey, r.AltKey)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetPasswordPolicy(ctx context.Context, directoryHref string) (*stormpath.PasswordPolicy, error) {
	if err := s.enter("GetPasswordPolicy"); err != nil {
		return nil, err
	}
	return policyOf[stormpath.PasswordPolicy](s, directoryHref, passwordPolicyKey)
}

func (s *Store) UpdatePasswordPolicy(ctx context.Context, p *stormpath.PasswordPolicy) (*stormpath.PasswordPolicy, error) {
	if err := s.enter("UpdatePasswordPolicy"); err != nil {
		return nil, err
	}
	return updatePolicy(s, p.Href, func(stored *stormpath.PasswordPolicy) {
		stored.ResetTokenTTL = p.ResetTokenTTL
		if p.ResetEmailStatus != "" {
			stored.ResetEmailStatus = p.ResetEmailStatus
		}
		if p.ResetSuccessEmailStatus != "" {
			stored.ResetSuccessEmailStatus = p.ResetSuccessEmailStatus
		}
	})
}

func (s *Store) GetPasswordStrength(ctx context.Context, directoryHref string) (*stormpath.PasswordStrength, error) {
	if err := s.enter("GetPasswordStrength"); err != nil {
		return nil, err
	}
	return policyOf[stormpath.PasswordStrength](s, directoryHref, passwordStrengthKey)
}

func (s *Store) UpdatePasswordStrength(ctx context.Context, p *stormpath.PasswordStrength) (*stormpath.PasswordStrength, error) {
	if err := s.enter("UpdatePasswordStrength"); err != nil {
		return nil, err
	}
	if p.MinLength > p.MaxLength {
		return nil, invalid("Password minLength %d exceeds maxLength %d.", p.MinLength, p.MaxLength)
	}
	return updatePolicy(s, p.Href, func(stored *stormpath.PasswordStrength) {
		href := stored.Href
		*stored = *p
		stored.Href = href
	})
}

func (s *Store) GetAccountCreationPolicy(ctx context.Context, directoryHref string) (*stormpath.AccountCreationPolicy, error) {
	if err := s.enter("GetAccountCreationPolicy"); err != nil {
		return nil, err
	}
	return policyOf[stormpath.AccountCreationPolicy](s, directoryHref, accountCreationPolicyKey)
}

func (s *Store) UpdateAccountCreationPolicy(ctx context.Context, p *stormpath.AccountCreationPolicy) (*stormpath.AccountCreationPolicy, error) {
	if err := s.enter("UpdateAccountCreationPolicy"); err != nil {
		return nil, err
	}
	return updatePolicy(s, p.Href, func(stored *stormpath.AccountCreationPolicy) {
		if p.VerificationEmailStatus != "" {
			stored.VerificationEmailStatus = p.VerificationEmailStatus
		}
		if p.VerificationSuccessEmailStatus != "" {
			stored.VerificationSuccessEmailStatus = p.VerificationSuccessEmailStatus
		}
		if p.WelcomeEmailStatus != "" {
			stored.WelcomeEmailStatus = p.WelcomeEmailStatus
		}
	})
}

func (s *Store) ListEmailTemplates(ctx context.Context, directoryHref string, kind stormpath.TemplateKind) ([]stormpath.EmailTemplate, error) {
	if err := s.enter("ListEmailTemplates"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	rs, err := rows(txn, templatesTable, nameIndex, scoped(directoryHref, string(kind)))
	if err != nil {
		return nil, err
	}
	out := make([]stormpath.EmailTemplate, 0, len(rs))
	for _, r := range rs {
		t := clone(r.Obj.(*stormpath.EmailTemplate))
		t.Href = r.Href
		out = append(out, *t)
	}
	return out, nil
}

func (s *Store) UpdateEmailTemplate(ctx context.Context, t *stormpath.EmailTemplate) (*stormpath.EmailTemplate, error) {
	if err := s.enter("UpdateEmailTemplate"); err != nil {
		return nil, err
	}
	if t.Name == "" {
		return nil, invalid("Email template name is required.")
	}
	var out *stormpath.EmailTemplate
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, templatesTable, idIndex, t.Href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(t.Href)
		}
		stored := clone(t)
		stored.Href = ""
		out = clone(stored)
		out.Href = r.Href
		return s.replace(txn, templatesTable, r, stored, r.NameKey, r.AltKey)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
