package stormpath

import (
	"encoding/json"
	"strings"
	"time"
)

type Status string

const (
	StatusEnabled    Status = "ENABLED"
	StatusDisabled   Status = "DISABLED"
	StatusUnverified Status = "UNVERIFIED"
)

// Link is a reference to another resource. The API represents unexpanded
// resources and collections as {"href": "..."}.
type Link struct {
	Href string `json:"href"`
}

func (l *Link) HrefOrEmpty() string {
	if l == nil {
		return ""
	}
	return l.Href
}

// CustomData is the free-form key/value bag attached to most resources.
type CustomData map[string]interface{}

type Tenant struct {
	Href          string `json:"href"`
	Name          string `json:"name"`
	Key           string `json:"key"`
	Directories   *Link  `json:"directories,omitempty"`
	Applications  *Link  `json:"applications,omitempty"`
	Organizations *Link  `json:"organizations,omitempty"`
	Groups        *Link  `json:"groups,omitempty"`
}

type Directory struct {
	Href                  string     `json:"href,omitempty"`
	Name                  string     `json:"name"`
	Description           string     `json:"description,omitempty"`
	Status                Status     `json:"status,omitempty"`
	Provider              *Provider  `json:"provider,omitempty"`
	CreatedAt             *time.Time `json:"createdAt,omitempty"`
	ModifiedAt            *time.Time `json:"modifiedAt,omitempty"`
	CustomData            *Link      `json:"customData,omitempty"`
	PasswordPolicy        *Link      `json:"passwordPolicy,omitempty"`
	AccountCreationPolicy *Link      `json:"accountCreationPolicy,omitempty"`
	Groups                *Link      `json:"groups,omitempty"`
	Accounts              *Link      `json:"accounts,omitempty"`
}

// ProviderKind returns the authentication provider classification of the
// directory. A directory without an expanded provider is a cloud directory.
func (d *Directory) ProviderKind() ProviderKind {
	if d.Provider == nil {
		return ProviderCloud
	}
	return d.Provider.Kind()
}

type Provider struct {
	Href                      string     `json:"href,omitempty"`
	ProviderID                string     `json:"providerId"`
	ClientID                  string     `json:"clientId,omitempty"`
	ClientSecret              string     `json:"clientSecret,omitempty"`
	RedirectURI               string     `json:"redirectUri,omitempty"`
	SSOLoginURL               string     `json:"ssoLoginUrl,omitempty"`
	SSOLogoutURL              string     `json:"ssoLogoutUrl,omitempty"`
	EncodedX509SigningCert    string     `json:"encodedX509SigningCert,omitempty"`
	RequestSignatureAlgorithm string     `json:"requestSignatureAlgorithm,omitempty"`
	Agent                     *Agent     `json:"agent,omitempty"`
	CreatedAt                 *time.Time `json:"createdAt,omitempty"`
	ModifiedAt                *time.Time `json:"modifiedAt,omitempty"`
}

func (p *Provider) Kind() ProviderKind {
	return KindOfProvider(p.ProviderID)
}

// Agent is the on-premise synchronisation agent backing a mirror directory.
type Agent struct {
	Href   string       `json:"href,omitempty"`
	Config *AgentConfig `json:"config,omitempty"`
}

type AgentConfig struct {
	DirectoryHost        string              `json:"directoryHost,omitempty"`
	DirectoryPort        int                 `json:"directoryPort,omitempty"`
	SSLRequired          bool                `json:"sslRequired"`
	AgentUserDN          string              `json:"agentUserDn,omitempty"`
	AgentUserDNPassword  string              `json:"agentUserDnPassword,omitempty"`
	BaseDN               string              `json:"baseDn,omitempty"`
	PollInterval         int                 `json:"pollInterval,omitempty"`
	ReferralMode         string              `json:"referralMode,omitempty"`
	IgnoreReferralIssues bool                `json:"ignoreReferralIssues"`
	AccountConfig        *AgentAccountConfig `json:"accountConfig,omitempty"`
	GroupConfig          *AgentGroupConfig   `json:"groupConfig,omitempty"`
}

type AgentAccountConfig struct {
	DNSuffix      string `json:"dnSuffix,omitempty"`
	ObjectClass   string `json:"objectClass,omitempty"`
	ObjectFilter  string `json:"objectFilter,omitempty"`
	EmailRDN      string `json:"emailRdn,omitempty"`
	GivenNameRDN  string `json:"givenNameRdn,omitempty"`
	MiddleNameRDN string `json:"middleNameRdn,omitempty"`
	SurnameRDN    string `json:"surnameRdn,omitempty"`
	UsernameRDN   string `json:"usernameRdn,omitempty"`
	PasswordRDN   string `json:"passwordRdn,omitempty"`
}

type AgentGroupConfig struct {
	DNSuffix       string `json:"dnSuffix,omitempty"`
	ObjectClass    string `json:"objectClass,omitempty"`
	ObjectFilter   string `json:"objectFilter,omitempty"`
	NameRDN        string `json:"nameRdn,omitempty"`
	DescriptionRDN string `json:"descriptionRdn,omitempty"`
	MembersRDN     string `json:"membersRdn,omitempty"`
}

type PasswordPolicy struct {
	Href                       string `json:"href,omitempty"`
	ResetTokenTTL              int    `json:"resetTokenTtl"`
	ResetEmailStatus           Status `json:"resetEmailStatus,omitempty"`
	ResetSuccessEmailStatus    Status `json:"resetSuccessEmailStatus,omitempty"`
	Strength                   *Link  `json:"strength,omitempty"`
	ResetEmailTemplates        *Link  `json:"resetEmailTemplates,omitempty"`
	ResetSuccessEmailTemplates *Link  `json:"resetSuccessEmailTemplates,omitempty"`
}

type PasswordStrength struct {
	Href         string `json:"href,omitempty"`
	MinLength    int    `json:"minLength"`
	MaxLength    int    `json:"maxLength"`
	MinLowerCase int    `json:"minLowerCase"`
	MinUpperCase int    `json:"minUpperCase"`
	MinNumeric   int    `json:"minNumeric"`
	MinSymbol    int    `json:"minSymbol"`
	MinDiacritic int    `json:"minDiacritic"`
	PreventReuse int    `json:"preventReuse"`
}

type AccountCreationPolicy struct {
	Href                              string `json:"href,omitempty"`
	VerificationEmailStatus           Status `json:"verificationEmailStatus,omitempty"`
	VerificationSuccessEmailStatus    Status `json:"verificationSuccessEmailStatus,omitempty"`
	WelcomeEmailStatus                Status `json:"welcomeEmailStatus,omitempty"`
	VerificationEmailTemplates        *Link  `json:"verificationEmailTemplates,omitempty"`
	VerificationSuccessEmailTemplates *Link  `json:"verificationSuccessEmailTemplates,omitempty"`
	WelcomeEmailTemplates             *Link  `json:"welcomeEmailTemplates,omitempty"`
}

// TemplateKind names one of the email template collections hanging off a
// directory's password or account creation policy.
type TemplateKind string

const (
	TemplateVerification        TemplateKind = "verificationEmailTemplates"
	TemplateVerificationSuccess TemplateKind = "verificationSuccessEmailTemplates"
	TemplateWelcome             TemplateKind = "welcomeEmailTemplates"
	TemplateReset               TemplateKind = "resetEmailTemplates"
	TemplateResetSuccess        TemplateKind = "resetSuccessEmailTemplates"
)

// AccountCreationTemplates and PasswordResetTemplates group the template
// collections by the policy that owns them.
var (
	AccountCreationTemplates = []TemplateKind{TemplateVerification, TemplateVerificationSuccess, TemplateWelcome}
	PasswordResetTemplates   = []TemplateKind{TemplateReset, TemplateResetSuccess}
)

type EmailTemplate struct {
	Href             string              `json:"href,omitempty"`
	Name             string              `json:"name"`
	Description      string              `json:"description,omitempty"`
	FromName         string              `json:"fromName,omitempty"`
	FromEmailAddress string              `json:"fromEmailAddress,omitempty"`
	Subject          string              `json:"subject,omitempty"`
	TextBody         string              `json:"textBody,omitempty"`
	HTMLBody         string              `json:"htmlBody,omitempty"`
	MimeType         string              `json:"mimeType,omitempty"`
	DefaultModel     *EmailTemplateModel `json:"defaultModel,omitempty"`
}

type EmailTemplateModel struct {
	LinkBaseURL string `json:"linkBaseUrl"`
}

type Group struct {
	Href        string     `json:"href,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Directory   *Link      `json:"directory,omitempty"`
	CustomData  *Link      `json:"customData,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	ModifiedAt  *time.Time `json:"modifiedAt,omitempty"`
}

type Account struct {
	Href             string        `json:"href,omitempty"`
	Username         string        `json:"username,omitempty"`
	Email            string        `json:"email,omitempty"`
	GivenName        string        `json:"givenName,omitempty"`
	MiddleName       string        `json:"middleName,omitempty"`
	Surname          string        `json:"surname,omitempty"`
	Status           Status        `json:"status,omitempty"`
	Password         string        `json:"password,omitempty"`
	ProviderData     *ProviderData `json:"providerData,omitempty"`
	Directory        *Link         `json:"directory,omitempty"`
	GroupMemberships *Link         `json:"groupMemberships,omitempty"`
	CustomData       *Link         `json:"customData,omitempty"`
	CreatedAt        *time.Time    `json:"createdAt,omitempty"`
	ModifiedAt       *time.Time    `json:"modifiedAt,omitempty"`
}

// ProviderKind returns how the account authenticates. Accounts without
// provider data belong to the cloud provider.
func (a *Account) ProviderKind() ProviderKind {
	if a.ProviderData == nil || a.ProviderData.ProviderID == "" {
		return ProviderCloud
	}
	return KindOfProvider(a.ProviderData.ProviderID)
}

type ProviderData struct {
	Href        string `json:"href,omitempty"`
	ProviderID  string `json:"providerId"`
	AccessToken string `json:"accessToken,omitempty"`
}

type GroupMembership struct {
	Href    string `json:"href,omitempty"`
	Account *Link  `json:"account"`
	Group   *Link  `json:"group"`
}

type Organization struct {
	Href                 string     `json:"href,omitempty"`
	Name                 string     `json:"name"`
	NameKey              string     `json:"nameKey"`
	Description          string     `json:"description,omitempty"`
	Status               Status     `json:"status,omitempty"`
	CustomData           *Link      `json:"customData,omitempty"`
	AccountStoreMappings *Link      `json:"accountStoreMappings,omitempty"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
	ModifiedAt           *time.Time `json:"modifiedAt,omitempty"`
}

type Application struct {
	Href                 string     `json:"href,omitempty"`
	Name                 string     `json:"name"`
	Description          string     `json:"description,omitempty"`
	Status               Status     `json:"status,omitempty"`
	OAuthPolicy          *Link      `json:"oAuthPolicy,omitempty"`
	CustomData           *Link      `json:"customData,omitempty"`
	AccountStoreMappings *Link      `json:"accountStoreMappings,omitempty"`
	CreatedAt            *time.Time `json:"createdAt,omitempty"`
	ModifiedAt           *time.Time `json:"modifiedAt,omitempty"`
}

// OAuthPolicy token lifetimes are ISO-8601 durations such as "PT1H".
type OAuthPolicy struct {
	Href            string `json:"href,omitempty"`
	AccessTokenTTL  string `json:"accessTokenTtl"`
	RefreshTokenTTL string `json:"refreshTokenTtl"`
}

// StoreKind tags which collection an account store lives in.
type StoreKind string

const (
	StoreUnknown      StoreKind = ""
	StoreDirectory    StoreKind = "directory"
	StoreGroup        StoreKind = "group"
	StoreOrganization StoreKind = "organization"
)

// AccountStoreRef is a reference to a Directory, Group or Organization. The
// wire format is a plain link; the kind is derived from the href path.
type AccountStoreRef struct {
	Kind StoreKind
	Href string
}

func (r AccountStoreRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(Link{Href: r.Href})
}

func (r *AccountStoreRef) UnmarshalJSON(b []byte) error {
	var l Link
	if err := json.Unmarshal(b, &l); err != nil {
		return err
	}
	r.Href = l.Href
	r.Kind = StoreKindOf(l.Href)
	return nil
}

// StoreKindOf classifies an account store href by its collection segment.
func StoreKindOf(href string) StoreKind {
	switch {
	case strings.Contains(href, "/directories/"):
		return StoreDirectory
	case strings.Contains(href, "/groups/"):
		return StoreGroup
	case strings.Contains(href, "/organizations/"):
		return StoreOrganization
	}
	return StoreUnknown
}

// AccountStoreMapping attaches an account store to either an Application or
// an Organization. Exactly one of Application and Organization is set.
type AccountStoreMapping struct {
	Href                  string          `json:"href,omitempty"`
	Application           *Link           `json:"application,omitempty"`
	Organization          *Link           `json:"organization,omitempty"`
	AccountStore          AccountStoreRef `json:"accountStore"`
	ListIndex             int             `json:"listIndex"`
	IsDefaultAccountStore bool            `json:"isDefaultAccountStore"`
	IsDefaultGroupStore   bool            `json:"isDefaultGroupStore"`
}

// Parent returns the href of the application or organization that owns the
// mapping.
func (m *AccountStoreMapping) Parent() string {
	if m.Application != nil {
		return m.Application.Href
	}
	return m.Organization.HrefOrEmpty()
}
