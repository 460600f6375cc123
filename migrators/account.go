package migrators

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindAccount = "account"

// passwordFormatMCF imports a password that is already hashed in modular
// crypt format.
const passwordFormatMCF = "mcf"

type AccountMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
}

func NewAccountMigrator(env *Env) *AccountMigrator {
	return &AccountMigrator{env: env, logger: env.named(kindAccount)}
}

// FindDestination looks src up inside the destination directory dir, first
// by username and then by email.
func (m *AccountMigrator) FindDestination(ctx context.Context, dir *stormpath.Directory, src *stormpath.Account) (*stormpath.Account, error) {
	kv := accountKeyValues(src)
	if src.Username != "" {
		accounts, err := call(ctx, m.env, m.logger, "Failed to search for account", kv, func() ([]stormpath.Account, error) {
			return m.env.Destination.SearchAccounts(ctx, dir.Href, stormpath.AccountQuery{Username: src.Username})
		})
		if err != nil {
			return nil, err
		}
		for i := range accounts {
			if accounts[i].Username == src.Username {
				return &accounts[i], nil
			}
		}
	}
	if src.Email != "" {
		accounts, err := call(ctx, m.env, m.logger, "Failed to search for account", kv, func() ([]stormpath.Account, error) {
			return m.env.Destination.SearchAccounts(ctx, dir.Href, stormpath.AccountQuery{Email: src.Email})
		})
		if err != nil {
			return nil, err
		}
		for i := range accounts {
			if accounts[i].Email == src.Email {
				return &accounts[i], nil
			}
		}
	}
	return nil, nil
}

// Copy updates existing in place, or creates the account. passwordHash is
// the MCF hash exported for src; when empty a cloud account is created with
// a random password that its owner has to reset. A nil account with a nil
// error means src was deliberately not copied.
func (m *AccountMigrator) Copy(ctx context.Context, dir *stormpath.Directory, src, existing *stormpath.Account, passwordHash string) (*stormpath.Account, error) {
	kv := accountKeyValues(src)

	if existing != nil {
		// Importing a hash into an account that already exists is not
		// supported, so the password is left untouched.
		data := &stormpath.Account{
			Href:       existing.Href,
			Username:   src.Username,
			Email:      src.Email,
			GivenName:  src.GivenName,
			MiddleName: src.MiddleName,
			Surname:    src.Surname,
			Status:     src.Status,
		}
		return call(ctx, m.env, m.logger, "Failed to update account", kv, func() (*stormpath.Account, error) {
			return m.env.Destination.UpdateAccount(ctx, data)
		})
	}

	switch src.ProviderKind() {
	case stormpath.ProviderSocial:
		data := &stormpath.Account{
			ProviderData: &stormpath.ProviderData{
				ProviderID:  src.ProviderData.ProviderID,
				AccessToken: src.ProviderData.AccessToken,
			},
		}
		return call(ctx, m.env, m.logger, "Failed to create account", kv, func() (*stormpath.Account, error) {
			return m.env.Destination.CreateAccount(ctx, dir.Href, data, stormpath.CreateAccountOptions{})
		})

	case stormpath.ProviderCloud:
		workflow := false
		data := &stormpath.Account{
			Username:   src.Username,
			Email:      src.Email,
			GivenName:  src.GivenName,
			MiddleName: src.MiddleName,
			Surname:    src.Surname,
			Status:     src.Status,
		}
		opts := stormpath.CreateAccountOptions{RegistrationWorkflowEnabled: &workflow}
		if passwordHash != "" {
			data.Password = passwordHash
			opts.PasswordFormat = passwordFormatMCF
		} else {
			password, err := randomPassword()
			if err != nil {
				return nil, err
			}
			data.Password = password
			m.logger.Warnw("No password hash available, creating account with a random password", kv...)
		}
		return call(ctx, m.env, m.logger, "Failed to create account", kv, func() (*stormpath.Account, error) {
			return m.env.Destination.CreateAccount(ctx, dir.Href, data, opts)
		})
	}

	m.logger.Warnw("Skipping account with unsupported provider",
		append(kv, "provider", src.ProviderData.ProviderID)...)
	return nil, nil
}

func (m *AccountMigrator) CopyCustomData(ctx context.Context, src, dst *stormpath.Account) (stormpath.CustomData, error) {
	if dst == nil {
		return nil, nil
	}
	return m.env.copyCustomData(ctx, m.logger, accountKeyValues(src), src.Href, dst.Href)
}

// Migrate copies one account into the destination directory dir. It returns
// nil when the account was skipped or could not be copied.
func (m *AccountMigrator) Migrate(ctx context.Context, dir *stormpath.Directory, src *stormpath.Account, passwordHash string) (*stormpath.Account, error) {
	kv := accountKeyValues(src)

	existing, err := m.FindDestination(ctx, dir, src)
	if err != nil {
		m.env.Metrics.record(kindAccount, outcomeFailed)
		return nil, settle(m.logger, "Failed to search for account", kv, err)
	}
	dst, err := m.Copy(ctx, dir, src, existing, passwordHash)
	if err != nil {
		m.env.Metrics.record(kindAccount, outcomeFailed)
		return nil, settle(m.logger, "Failed to copy account", kv, err)
	}
	switch {
	case dst == nil:
		m.env.Metrics.record(kindAccount, outcomeSkipped)
		return nil, nil
	case existing != nil:
		m.env.Metrics.record(kindAccount, outcomeUpdated)
	default:
		m.env.Metrics.record(kindAccount, outcomeCreated)
	}

	if _, err := m.CopyCustomData(ctx, src, dst); err != nil {
		if err := settle(m.logger, "Failed to copy account custom data", kv, err); err != nil {
			return nil, err
		}
	}

	m.logger.Infow("Copied account", append(kv, "directory", dir.Name, "updated", existing != nil)...)
	return dst, nil
}

func accountKeyValues(a *stormpath.Account) []interface{} {
	kv := []interface{}{"href", a.Href}
	if a.Username != "" {
		kv = append(kv, "username", a.Username)
	}
	if a.Email != "" {
		kv = append(kv, "email", a.Email)
	}
	return kv
}

const (
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{}"
)

// randomPassword returns a 32 character password that satisfies any
// reasonable strength policy: it draws from every character class.
func randomPassword() (string, error) {
	const length = 32
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := lowerChars + upperChars + digitChars + symbolChars

	buf := make([]byte, 0, length)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", errors.Wrap(err, "generating password")
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, errors.Wrap(err, "generating password")
	}
	return set[n.Int64()], nil
}
