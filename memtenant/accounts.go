package memtenant

import (
	"context"
	"strings"

	"github.com/hashicorp/go-memdb"

	stormpath "github.com/stormpath/stormpath-migrate"
)

func (s *Store) ListGroups(ctx context.Context, directoryHref string) ([]stormpath.Group, error) {
	if err := s.enter("ListGroups"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Group](txn, groupsTable, parentIndex, directoryHref)
}

func (s *Store) GetGroup(ctx context.Context, href string) (*stormpath.Group, error) {
	if err := s.enter("GetGroup"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return getObj[stormpath.Group](txn, groupsTable, href)
}

func (s *Store) SearchGroups(ctx context.Context, directoryHref string, name string) ([]stormpath.Group, error) {
	if err := s.enter("SearchGroups"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Group](txn, groupsTable, nameIndex, scoped(directoryHref, name))
}

func (s *Store) CreateGroup(ctx context.Context, directoryHref string, g *stormpath.Group) (*stormpath.Group, error) {
	if err := s.enter("CreateGroup"); err != nil {
		return nil, err
	}
	if g.Name == "" {
		return nil, invalid("Group name is required.")
	}
	group := clone(g)
	group.Href = s.href("groups")
	group.Directory = &stormpath.Link{Href: directoryHref}
	group.CustomData = &stormpath.Link{Href: group.Href + "/customData"}
	if group.Status == "" {
		group.Status = stormpath.StatusEnabled
	}
	now := s.timestamp()
	if group.CreatedAt == nil {
		group.CreatedAt = now
	}
	group.ModifiedAt = now

	err := s.write(func(txn *memdb.Txn) error {
		dir, err := first(txn, directoriesTable, idIndex, directoryHref)
		if err != nil {
			return err
		}
		if dir == nil {
			return notFound(directoryHref)
		}
		existing, err := first(txn, groupsTable, nameIndex, scoped(directoryHref, group.Name))
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("Group name %q is already in use in this directory.", group.Name)
		}
		return s.insert(txn, groupsTable, &row{
			Href:    group.Href,
			Parent:  directoryHref,
			NameKey: scoped(directoryHref, group.Name),
			Obj:     group,
		})
	})
	if err != nil {
		return nil, err
	}
	return clone(group), nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *stormpath.Group) (*stormpath.Group, error) {
	if err := s.enter("UpdateGroup"); err != nil {
		return nil, err
	}
	var out *stormpath.Group
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, groupsTable, idIndex, g.Href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(g.Href)
		}
		group := clone(r.Obj.(*stormpath.Group))
		if g.Name != "" && g.Name != group.Name {
			other, err := first(txn, groupsTable, nameIndex, scoped(r.Parent, g.Name))
			if err != nil {
				return err
			}
			if other != nil {
				return conflict("Group name %q is already in use in this directory.", g.Name)
			}
			group.Name = g.Name
		}
		group.Description = g.Description
		if g.Status != "" {
			group.Status = g.Status
		}
		group.ModifiedAt = s.timestamp()
		out = clone(group)
		return s.replace(txn, groupsTable, r, group, scoped(r.Parent, group.Name), "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readAccounts hides credentials the way the API does.
func readAccounts(accounts []stormpath.Account) []stormpath.Account {
	for i := range accounts {
		accounts[i].Password = ""
	}
	return accounts
}

func (s *Store) ListAccounts(ctx context.Context, directoryHref string) ([]stormpath.Account, error) {
	if err := s.enter("ListAccounts"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	accounts, err := listObj[stormpath.Account](txn, accountsTable, parentIndex, directoryHref)
	return readAccounts(accounts), err
}

func (s *Store) GetAccount(ctx context.Context, href string) (*stormpath.Account, error) {
	if err := s.enter("GetAccount"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	a, err := getObj[stormpath.Account](txn, accountsTable, href)
	if a != nil {
		a.Password = ""
	}
	return a, err
}

// SearchAccounts matches by username, by email, or by both when both are set.
func (s *Store) SearchAccounts(ctx context.Context, directoryHref string, q stormpath.AccountQuery) ([]stormpath.Account, error) {
	if err := s.enter("SearchAccounts"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()

	var accounts []stormpath.Account
	var err error
	switch {
	case q.Username != "":
		accounts, err = listObj[stormpath.Account](txn, accountsTable, nameIndex, scoped(directoryHref, strings.ToLower(q.Username)))
	case q.Email != "":
		accounts, err = listObj[stormpath.Account](txn, accountsTable, altIndex, scoped(directoryHref, strings.ToLower(q.Email)))
	default:
		accounts, err = listObj[stormpath.Account](txn, accountsTable, parentIndex, directoryHref)
	}
	if err != nil {
		return nil, err
	}
	if q.Username != "" && q.Email != "" {
		filtered := accounts[:0]
		for _, a := range accounts {
			if strings.EqualFold(a.Email, q.Email) {
				filtered = append(filtered, a)
			}
		}
		accounts = filtered
	}
	return readAccounts(accounts), nil
}

// CreateAccount follows the API rules: cloud accounts need an email and a
// password, usernames default to the email, and imported passwords must be
// in modular crypt format. Social accounts are keyed by provider and access
// token, so creating one twice returns the first.
func (s *Store) CreateAccount(ctx context.Context, directoryHref string, a *stormpath.Account, opts stormpath.CreateAccountOptions) (*stormpath.Account, error) {
	if err := s.enter("CreateAccount"); err != nil {
		return nil, err
	}

	account := clone(a)
	social := account.ProviderKind() != stormpath.ProviderCloud
	if social {
		if account.ProviderData.AccessToken == "" {
			return nil, invalid("providerData.accessToken is required.")
		}
		account.Password = ""
	} else {
		if account.Email == "" {
			return nil, invalid("Account email address is required.")
		}
		if account.Password == "" {
			return nil, invalid("Account password is required.")
		}
		if opts.PasswordFormat != "" && opts.PasswordFormat != "mcf" {
			return nil, invalid("Unsupported password format %q.", opts.PasswordFormat)
		}
		if opts.PasswordFormat == "mcf" && !strings.HasPrefix(account.Password, "$") {
			return nil, invalid("Password is not in modular crypt format.")
		}
		if account.Username == "" {
			account.Username = account.Email
		}
		account.ProviderData = &stormpath.ProviderData{ProviderID: stormpath.CloudProviderID}
	}

	account.Href = s.href("accounts")
	account.ProviderData.Href = account.Href + "/providerData"
	account.Directory = &stormpath.Link{Href: directoryHref}
	account.GroupMemberships = &stormpath.Link{Href: account.Href + "/groupMemberships"}
	account.CustomData = &stormpath.Link{Href: account.Href + "/customData"}
	now := s.timestamp()
	if account.CreatedAt == nil {
		account.CreatedAt = now
	}
	account.ModifiedAt = now
	if account.Status == "" {
		account.Status = stormpath.StatusEnabled
	}

	var out *stormpath.Account
	err := s.write(func(txn *memdb.Txn) error {
		dir, err := first(txn, directoriesTable, idIndex, directoryHref)
		if err != nil {
			return err
		}
		if dir == nil {
			return notFound(directoryHref)
		}

		if social {
			existing, err := rows(txn, accountsTable, parentIndex, directoryHref)
			if err != nil {
				return err
			}
			for _, r := range existing {
				pd := r.Obj.(*stormpath.Account).ProviderData
				if pd != nil && pd.ProviderID == account.ProviderData.ProviderID && pd.AccessToken == account.ProviderData.AccessToken {
					out = clone(r.Obj.(*stormpath.Account))
					return nil
				}
			}
		}

		if err := s.checkAccountKeys(txn, directoryHref, "", account); err != nil {
			return err
		}
		if !social && s.verificationRequired(txn, directoryHref, opts) {
			account.Status = stormpath.StatusUnverified
			s.mu.Lock()
			s.emails++
			s.mu.Unlock()
		}

		out = clone(account)
		return s.insert(txn, accountsTable, &row{
			Href:         account.Href,
			Parent:       directoryHref,
			NameKey:      scoped(directoryHref, strings.ToLower(account.Username)),
			AltKey:       scoped(directoryHref, strings.ToLower(account.Email)),
			Secret:       account.Password,
			SecretFormat: opts.PasswordFormat,
			Obj:          account,
		})
	})
	if err != nil {
		return nil, err
	}
	out.Password = ""
	return out, nil
}

// verificationRequired reports whether the account creation policy would
// email the new account, unless the request disabled the workflow.
func (s *Store) verificationRequired(txn *memdb.Txn, directoryHref string, opts stormpath.CreateAccountOptions) bool {
	if opts.RegistrationWorkflowEnabled != nil && !*opts.RegistrationWorkflowEnabled {
		return false
	}
	r, err := first(txn, policiesTable, nameIndex, scoped(directoryHref, accountCreationPolicyKey))
	if err != nil || r == nil {
		return false
	}
	return r.Obj.(*stormpath.AccountCreationPolicy).VerificationEmailStatus == stormpath.StatusEnabled
}

// checkAccountKeys rejects a username or email used by another account of
// the directory. self is the href of the account being updated.
func (s *Store) checkAccountKeys(txn *memdb.Txn, directoryHref, self string, a *stormpath.Account) error {
	if a.Username != "" {
		other, err := first(txn, accountsTable, nameIndex, scoped(directoryHref, strings.ToLower(a.Username)))
		if err != nil {
			return err
		}
		if other != nil && other.Href != self {
			return conflict("Account with that username already exists.")
		}
	}
	if a.Email != "" {
		other, err := first(txn, accountsTable, altIndex, scoped(directoryHref, strings.ToLower(a.Email)))
		if err != nil {
			return err
		}
		if other != nil && other.Href != self {
			return conflict("Account with that email already exists.")
		}
	}
	return nil
}

// UpdateAccount saves the profile of an existing account. Passwords cannot be
// changed through an update.
func (s *Store) UpdateAccount(ctx context.Context, a *stormpath.Account) (*stormpath.Account, error) {
	if err := s.enter("UpdateAccount"); err != nil {
		return nil, err
	}
	var out *stormpath.Account
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, accountsTable, idIndex, a.Href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(a.Href)
		}
		account := clone(r.Obj.(*stormpath.Account))
		if a.Username != "" {
			account.Username = a.Username
		}
		if a.Email != "" {
			account.Email = a.Email
		}
		account.GivenName = a.GivenName
		account.MiddleName = a.MiddleName
		account.Surname = a.Surname
		if a.Status != "" {
			account.Status = a.Status
		}
		if err := s.checkAccountKeys(txn, r.Parent, r.Href, account); err != nil {
			return err
		}
		account.ModifiedAt = s.timestamp()
		out = clone(account)
		return s.replace(txn, accountsTable, r, account,
			scoped(r.Parent, strings.ToLower(account.Username)),
			scoped(r.Parent, strings.ToLower(account.Email)))
	})
	if err != nil {
		return nil, err
	}
	out.Password = ""
	return out, nil
}

// Credential returns the password an account was created with and the
// format it was imported in, which the API itself never reveals.
func (s *Store) Credential(accountHref string) (password, format string, ok bool) {
	txn := s.read()
	defer txn.Abort()
	r, err := first(txn, accountsTable, idIndex, accountHref)
	if err != nil || r == nil {
		return "", "", false
	}
	return r.Secret, r.SecretFormat, true
}

func (s *Store) ListGroupMemberships(ctx context.Context, accountHref string) ([]stormpath.GroupMembership, error) {
	if err := s.enter("ListGroupMemberships"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.GroupMembership](txn, membershipsTable, parentIndex, accountHref)
}

// ListGroupMembers returns the memberships of a group.
func (s *Store) ListGroupMembers(groupHref string) ([]stormpath.GroupMembership, error) {
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.GroupMembership](txn, membershipsTable, altIndex, groupHref)
}

func (s *Store) CreateGroupMembership(ctx context.Context, accountHref, groupHref string) (*stormpath.GroupMembership, error) {
	if err := s.enter("CreateGroupMembership"); err != nil {
		return nil, err
	}
	gm := &stormpath.GroupMembership{
		Href:    s.href("groupMemberships"),
		Account: &stormpath.Link{Href: accountHref},
		Group:   &stormpath.Link{Href: groupHref},
	}
	err := s.write(func(txn *memdb.Txn) error {
		account, err := first(txn, accountsTable, idIndex, accountHref)
		if err != nil {
			return err
		}
		if account == nil {
			return notFound(accountHref)
		}
		group, err := first(txn, groupsTable, idIndex, groupHref)
		if err != nil {
			return err
		}
		if group == nil {
			return notFound(groupHref)
		}
		if group.Parent != account.Parent {
			return invalid("Account and group belong to different directories.")
		}
		existing, err := first(txn, membershipsTable, nameIndex, scoped(accountHref, groupHref))
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("Account is already a member of the group.")
		}
		return s.insert(txn, membershipsTable, &row{
			Href:    gm.Href,
			Parent:  accountHref,
			NameKey: scoped(accountHref, groupHref),
			AltKey:  groupHref,
			Obj:     gm,
		})
	})
	if err != nil {
		return nil, err
	}
	return clone(gm), nil
}
