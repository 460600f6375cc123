package memtenant

import (
	"context"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	stormpath "github.com/stormpath/stormpath-migrate"
)

func (s *Store) ListOrganizations(ctx context.Context) ([]stormpath.Organization, error) {
	if err := s.enter("ListOrganizations"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Organization](txn, organizationsTable, parentIndex, s.tenantHref)
}

func (s *Store) GetOrganization(ctx context.Context, href string) (*stormpath.Organization, error) {
	if err := s.enter("GetOrganization"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return getObj[stormpath.Organization](txn, organizationsTable, href)
}

func (s *Store) SearchOrganizations(ctx context.Context, q stormpath.OrganizationQuery) ([]stormpath.Organization, error) {
	if err := s.enter("SearchOrganizations"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	switch {
	case q.Name != "":
		orgs, err := listObj[stormpath.Organization](txn, organizationsTable, nameIndex, scoped(s.tenantHref, q.Name))
		if err != nil || q.NameKey == "" {
			return orgs, err
		}
		filtered := orgs[:0]
		for _, o := range orgs {
			if o.NameKey == q.NameKey {
				filtered = append(filtered, o)
			}
		}
		return filtered, nil
	case q.NameKey != "":
		return listObj[stormpath.Organization](txn, organizationsTable, altIndex, scoped(s.tenantHref, q.NameKey))
	}
	return listObj[stormpath.Organization](txn, organizationsTable, parentIndex, s.tenantHref)
}

func (s *Store) CreateOrganization(ctx context.Context, o *stormpath.Organization) (*stormpath.Organization, error) {
	if err := s.enter("CreateOrganization"); err != nil {
		return nil, err
	}
	if o.Name == "" || o.NameKey == "" {
		return nil, invalid("Organization name and nameKey are required.")
	}
	org := clone(o)
	org.Href = s.href("organizations")
	org.CustomData = &stormpath.Link{Href: org.Href + "/customData"}
	org.AccountStoreMappings = &stormpath.Link{Href: org.Href + "/accountStoreMappings"}
	if org.Status == "" {
		org.Status = stormpath.StatusEnabled
	}
	now := s.timestamp()
	if org.CreatedAt == nil {
		org.CreatedAt = now
	}
	org.ModifiedAt = now

	err := s.write(func(txn *memdb.Txn) error {
		if err := s.checkOrganizationKeys(txn, "", org); err != nil {
			return err
		}
		return s.insert(txn, organizationsTable, &row{
			Href:    org.Href,
			Parent:  s.tenantHref,
			NameKey: scoped(s.tenantHref, org.Name),
			AltKey:  scoped(s.tenantHref, org.NameKey),
			Obj:     org,
		})
	})
	if err != nil {
		return nil, err
	}
	return clone(org), nil
}

func (s *Store) checkOrganizationKeys(txn *memdb.Txn, self string, o *stormpath.Organization) error {
	other, err := first(txn, organizationsTable, nameIndex, scoped(s.tenantHref, o.Name))
	if err != nil {
		return err
	}
	if other != nil && other.Href != self {
		return conflict("Organization name %q is already in use.", o.Name)
	}
	other, err = first(txn, organizationsTable, altIndex, scoped(s.tenantHref, o.NameKey))
	if err != nil {
		return err
	}
	if other != nil && other.Href != self {
		return conflict("Organization nameKey %q is already in use.", o.NameKey)
	}
	return nil
}

func (s *Store) UpdateOrganization(ctx context.Context, o *stormpath.Organization) (*stormpath.Organization, error) {
	if err := s.enter("UpdateOrganization"); err != nil {
		return nil, err
	}
	var out *stormpath.Organization
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, organizationsTable, idIndex, o.Href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(o.Href)
		}
		org := clone(r.Obj.(*stormpath.Organization))
		if o.Name != "" {
			org.Name = o.Name
		}
		if o.NameKey != "" {
			org.NameKey = o.NameKey
		}
		org.Description = o.Description
		if o.Status != "" {
			org.Status = o.Status
		}
		if err := s.checkOrganizationKeys(txn, r.Href, org); err != nil {
			return err
		}
		org.ModifiedAt = s.timestamp()
		out = clone(org)
		return s.replace(txn, organizationsTable, r, org, scoped(s.tenantHref, org.Name), scoped(s.tenantHref, org.NameKey))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListApplications(ctx context.Context) ([]stormpath.Application, error) {
	if err := s.enter("ListApplications"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Application](txn, applicationsTable, parentIndex, s.tenantHref)
}

func (s *Store) SearchApplications(ctx context.Context, name string) ([]stormpath.Application, error) {
	if err := s.enter("SearchApplications"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	return listObj[stormpath.Application](txn, applicationsTable, nameIndex, scoped(s.tenantHref, name))
}

// CreateApplication stores a together with a default OAuth policy.
func (s *Store) CreateApplication(ctx context.Context, a *stormpath.Application) (*stormpath.Application, error) {
	if err := s.enter("CreateApplication"); err != nil {
		return nil, err
	}
	if a.Name == "" {
		return nil, invalid("Application name is required.")
	}
	app := clone(a)
	app.Href = s.href("applications")
	app.CustomData = &stormpath.Link{Href: app.Href + "/customData"}
	app.AccountStoreMappings = &stormpath.Link{Href: app.Href + "/accountStoreMappings"}
	policy := &stormpath.OAuthPolicy{
		Href:            s.href("oAuthPolicies"),
		AccessTokenTTL:  "PT1H",
		RefreshTokenTTL: "P60D",
	}
	app.OAuthPolicy = &stormpath.Link{Href: policy.Href}
	if app.Status == "" {
		app.Status = stormpath.StatusEnabled
	}
	now := s.timestamp()
	if app.CreatedAt == nil {
		app.CreatedAt = now
	}
	app.ModifiedAt = now

	err := s.write(func(txn *memdb.Txn) error {
		existing, err := first(txn, applicationsTable, nameIndex, scoped(s.tenantHref, app.Name))
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("Application name %q is already in use.", app.Name)
		}
		if err := s.insert(txn, applicationsTable, &row{
			Href:    app.Href,
			Parent:  s.tenantHref,
			NameKey: scoped(s.tenantHref, app.Name),
			Obj:     app,
		}); err != nil {
			return err
		}
		return s.insert(txn, policiesTable, &row{
			Href:    policy.Href,
			Parent:  app.Href,
			NameKey: scoped(app.Href, oauthPolicyKey),
			Obj:     policy,
		})
	})
	if err != nil {
		return nil, err
	}
	return clone(app), nil
}

func (s *Store) UpdateApplication(ctx context.Context, a *stormpath.Application) (*stormpath.Application, error) {
	if err := s.enter("UpdateApplication"); err != nil {
		return nil, err
	}
	var out *stormpath.Application
	err := s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, applicationsTable, idIndex, a.Href)
		if err != nil {
			return err
		}
		if r == nil {
			return notFound(a.Href)
		}
		app := clone(r.Obj.(*stormpath.Application))
		if a.Name != "" && a.Name != app.Name {
			other, err := first(txn, applicationsTable, nameIndex, scoped(s.tenantHref, a.Name))
			if err != nil {
				return err
			}
			if other != nil {
				return conflict("Application name %q is already in use.", a.Name)
			}
			app.Name = a.Name
		}
		app.Description = a.Description
		if a.Status != "" {
			app.Status = a.Status
		}
		app.ModifiedAt = s.timestamp()
		out = clone(app)
		return s.replace(txn, applicationsTable, r, app, scoped(s.tenantHref, app.Name), "")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetOAuthPolicy(ctx context.Context, applicationHref string) (*stormpath.OAuthPolicy, error) {
	if err := s.enter("GetOAuthPolicy"); err != nil {
		return nil, err
	}
	return policyOf[stormpath.OAuthPolicy](s, applicationHref, oauthPolicyKey)
}

func (s *Store) UpdateOAuthPolicy(ctx context.Context, p *stormpath.OAuthPolicy) (*stormpath.OAuthPolicy, error) {
	if err := s.enter("UpdateOAuthPolicy"); err != nil {
		return nil, err
	}
	return updatePolicy(s, p.Href, func(stored *stormpath.OAuthPolicy) {
		if p.AccessTokenTTL != "" {
			stored.AccessTokenTTL = p.AccessTokenTTL
		}
		if p.RefreshTokenTTL != "" {
			stored.RefreshTokenTTL = p.RefreshTokenTTL
		}
	})
}

// ListAccountStoreMappings returns the mappings of an application or an
// organization ordered by list index.
func (s *Store) ListAccountStoreMappings(ctx context.Context, parentHref string) ([]stormpath.AccountStoreMapping, error) {
	if err := s.enter("ListAccountStoreMappings"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	mappings, err := listObj[stormpath.AccountStoreMapping](txn, mappingsTable, parentIndex, parentHref)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(mappings, func(i, j int) bool { return mappings[i].ListIndex < mappings[j].ListIndex })
	return mappings, nil
}

func (s *Store) CreateAccountStoreMapping(ctx context.Context, m *stormpath.AccountStoreMapping) (*stormpath.AccountStoreMapping, error) {
	if err := s.enter("CreateAccountStoreMapping"); err != nil {
		return nil, err
	}
	mapping := clone(m)
	mapping.Href = s.href("accountStoreMappings")
	parent := mapping.Parent()
	store := mapping.AccountStore.Href

	err := s.write(func(txn *memdb.Txn) error {
		parentTable := applicationsTable
		if mapping.Application == nil {
			parentTable = organizationsTable
		}
		p, err := first(txn, parentTable, idIndex, parent)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound(parent)
		}

		var storeTable string
		switch mapping.AccountStore.Kind {
		case stormpath.StoreDirectory:
			storeTable = directoriesTable
		case stormpath.StoreGroup:
			storeTable = groupsTable
		case stormpath.StoreOrganization:
			if parentTable == organizationsTable {
				return invalid("An organization cannot be mapped to an organization.")
			}
			storeTable = organizationsTable
		default:
			return invalid("Unsupported account store %s.", store)
		}
		st, err := first(txn, storeTable, idIndex, store)
		if err != nil {
			return err
		}
		if st == nil {
			return notFound(store)
		}

		existing, err := first(txn, mappingsTable, nameIndex, scoped(parent, store))
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("The account store is already mapped.")
		}
		return s.insert(txn, mappingsTable, &row{
			Href:    mapping.Href,
			Parent:  parent,
			NameKey: scoped(parent, store),
			Obj:     mapping,
		})
	})
	if err != nil {
		return nil, err
	}
	return clone(mapping), nil
}

// customDataRecord is the stored custom data of one resource.
type customDataRecord struct {
	Data       stormpath.CustomData
	CreatedAt  time.Time
	ModifiedAt time.Time
}

var resourceTables = []string{directoriesTable, groupsTable, accountsTable, organizationsTable, applicationsTable}

func (s *Store) resourceExists(txn *memdb.Txn, href string) (bool, error) {
	for _, table := range resourceTables {
		r, err := first(txn, table, idIndex, href)
		if err != nil {
			return false, err
		}
		if r != nil {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) render(resourceHref string, rec *customDataRecord) stormpath.CustomData {
	out := stormpath.CustomData{"href": resourceHref + "/customData"}
	if rec == nil {
		return out
	}
	for k, v := range *clone(&rec.Data) {
		out[k] = v
	}
	out["createdAt"] = rec.CreatedAt.Format(time.RFC3339)
	out["modifiedAt"] = rec.ModifiedAt.Format(time.RFC3339)
	return out
}

// GetCustomData returns the custom data of a resource including the fields
// the API adds: href, createdAt and modifiedAt.
func (s *Store) GetCustomData(ctx context.Context, resourceHref string) (stormpath.CustomData, error) {
	if err := s.enter("GetCustomData"); err != nil {
		return nil, err
	}
	txn := s.read()
	defer txn.Abort()
	r, err := first(txn, customDataTable, idIndex, resourceHref+"/customData")
	if err != nil {
		return nil, err
	}
	if r == nil {
		return s.render(resourceHref, nil), nil
	}
	return s.render(resourceHref, r.Obj.(*customDataRecord)), nil
}

var reservedCustomDataKeys = map[string]bool{"href": true, "createdAt": true, "modifiedAt": true}

// UpdateCustomData merges data into the top level of the resource's custom
// data.
func (s *Store) UpdateCustomData(ctx context.Context, resourceHref string, data stormpath.CustomData) (stormpath.CustomData, error) {
	if err := s.enter("UpdateCustomData"); err != nil {
		return nil, err
	}
	incoming := *clone(&data)
	for k := range incoming {
		if reservedCustomDataKeys[k] {
			return nil, invalid("Custom data field %q is reserved.", k)
		}
	}

	var out stormpath.CustomData
	err := s.write(func(txn *memdb.Txn) error {
		ok, err := s.resourceExists(txn, resourceHref)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(resourceHref)
		}
		href := resourceHref + "/customData"
		r, err := first(txn, customDataTable, idIndex, href)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		rec := &customDataRecord{Data: stormpath.CustomData{}, CreatedAt: now}
		if r != nil {
			prev := r.Obj.(*customDataRecord)
			rec.Data = *clone(&prev.Data)
			rec.CreatedAt = prev.CreatedAt
		}
		for k, v := range incoming {
			rec.Data[k] = v
		}
		rec.ModifiedAt = now
		out = s.render(resourceHref, rec)
		if r != nil {
			return s.replace(txn, customDataTable, r, rec, "", "")
		}
		return s.insert(txn, customDataTable, &row{Href: href, Parent: resourceHref, Obj: rec})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteCustomDataField(ctx context.Context, resourceHref string, key string) error {
	if err := s.enter("DeleteCustomDataField"); err != nil {
		return err
	}
	return s.write(func(txn *memdb.Txn) error {
		r, err := first(txn, customDataTable, idIndex, resourceHref+"/customData")
		if err != nil || r == nil {
			return err
		}
		prev := r.Obj.(*customDataRecord)
		if _, ok := prev.Data[key]; !ok {
			return nil
		}
		rec := &customDataRecord{
			Data:       *clone(&prev.Data),
			CreatedAt:  prev.CreatedAt,
			ModifiedAt: s.now().UTC(),
		}
		delete(rec.Data, key)
		return s.replace(txn, customDataTable, r, rec, "", "")
	})
}
