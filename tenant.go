package stormpath

import (
	"context"
)

type ProviderKind int

const (
	ProviderUnknown ProviderKind = iota
	ProviderCloud
	ProviderSocial
	ProviderMirror
	ProviderSAML
)

const (
	CloudProviderID = "stormpath"
	SAMLProviderID  = "saml"
)

var (
	SocialProviderIDs = []string{"facebook", "google", "linkedin", "github"}
	MirrorProviderIDs = []string{"ldap", "ad"}
)

func KindOfProvider(providerID string) ProviderKind {
	switch providerID {
	case "", CloudProviderID:
		return ProviderCloud
	case SAMLProviderID:
		return ProviderSAML
	}
	for _, id := range SocialProviderIDs {
		if id == providerID {
			return ProviderSocial
		}
	}
	for _, id := range MirrorProviderIDs {
		if id == providerID {
			return ProviderMirror
		}
	}
	return ProviderUnknown
}

func (k ProviderKind) String() string {
	switch k {
	case ProviderCloud:
		return "cloud"
	case ProviderSocial:
		return "social"
	case ProviderMirror:
		return "mirror"
	case ProviderSAML:
		return "saml"
	}
	return "unknown"
}

type AccountQuery struct {
	Username string
	Email    string
}

type OrganizationQuery struct {
	Name    string
	NameKey string
}

type CreateAccountOptions struct {
	// PasswordFormat "mcf" imports Password as an already hashed credential.
	PasswordFormat string
	// RegistrationWorkflowEnabled overrides the directory's account creation
	// policy for this request when set.
	RegistrationWorkflowEnabled *bool
}

type DirectoryAPI interface {
	ListDirectories(ctx context.Context) ([]Directory, error)
	GetDirectory(ctx context.Context, href string) (*Directory, error)
	SearchDirectories(ctx context.Context, name string) ([]Directory, error)
	CreateDirectory(ctx context.Context, d *Directory) (*Directory, error)
	UpdateDirectory(ctx context.Context, d *Directory) (*Directory, error)
}

type PolicyAPI interface {
	GetPasswordPolicy(ctx context.Context, directoryHref string) (*PasswordPolicy, error)
	UpdatePasswordPolicy(ctx context.Context, p *PasswordPolicy) (*PasswordPolicy, error)
	GetPasswordStrength(ctx context.Context, directoryHref string) (*PasswordStrength, error)
	UpdatePasswordStrength(ctx context.Context, s *PasswordStrength) (*PasswordStrength, error)
	GetAccountCreationPolicy(ctx context.Context, directoryHref string) (*AccountCreationPolicy, error)
	UpdateAccountCreationPolicy(ctx context.Context, p *AccountCreationPolicy) (*AccountCreationPolicy, error)
	ListEmailTemplates(ctx context.Context, directoryHref string, kind TemplateKind) ([]EmailTemplate, error)
	UpdateEmailTemplate(ctx context.Context, t *EmailTemplate) (*EmailTemplate, error)
}

type GroupAPI interface {
	ListGroups(ctx context.Context, directoryHref string) ([]Group, error)
	GetGroup(ctx context.Context, href string) (*Group, error)
	SearchGroups(ctx context.Context, directoryHref string, name string) ([]Group, error)
	CreateGroup(ctx context.Context, directoryHref string, g *Group) (*Group, error)
	UpdateGroup(ctx context.Context, g *Group) (*Group, error)
}

type AccountAPI interface {
	ListAccounts(ctx context.Context, directoryHref string) ([]Account, error)
	GetAccount(ctx context.Context, href string) (*Account, error)
	SearchAccounts(ctx context.Context, directoryHref string, q AccountQuery) ([]Account, error)
	CreateAccount(ctx context.Context, directoryHref string, a *Account, opts CreateAccountOptions) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) (*Account, error)
	ListGroupMemberships(ctx context.Context, accountHref string) ([]GroupMembership, error)
	CreateGroupMembership(ctx context.Context, accountHref, groupHref string) (*GroupMembership, error)
}

type OrganizationAPI interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, href string) (*Organization, error)
	SearchOrganizations(ctx context.Context, q OrganizationQuery) ([]Organization, error)
	CreateOrganization(ctx context.Context, o *Organization) (*Organization, error)
	UpdateOrganization(ctx context.Context, o *Organization) (*Organization, error)
}

type ApplicationAPI interface {
	ListApplications(ctx context.Context) ([]Application, error)
	SearchApplications(ctx context.Context, name string) ([]Application, error)
	CreateApplication(ctx context.Context, a *Application) (*Application, error)
	UpdateApplication(ctx context.Context, a *Application) (*Application, error)
	GetOAuthPolicy(ctx context.Context, applicationHref string) (*OAuthPolicy, error)
	UpdateOAuthPolicy(ctx context.Context, p *OAuthPolicy) (*OAuthPolicy, error)
}

type MappingAPI interface {
	// ListAccountStoreMappings lists the mappings of an application or
	// organization, ordered by list index.
	ListAccountStoreMappings(ctx context.Context, parentHref string) ([]AccountStoreMapping, error)
	CreateAccountStoreMapping(ctx context.Context, m *AccountStoreMapping) (*AccountStoreMapping, error)
}

type CustomDataAPI interface {
	GetCustomData(ctx context.Context, resourceHref string) (CustomData, error)
	// UpdateCustomData merges data into the resource's custom data.
	UpdateCustomData(ctx context.Context, resourceHref string, data CustomData) (CustomData, error)
	DeleteCustomDataField(ctx context.Context, resourceHref string, key string) error
}

// TenantAPI is the complete surface of an identity tenant used by the migrators.
type TenantAPI interface {
	DirectoryAPI
	PolicyAPI
	GroupAPI
	AccountAPI
	OrganizationAPI
	ApplicationAPI
	MappingAPI
	CustomDataAPI
}
