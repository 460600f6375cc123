package migrators

import (
	"context"

	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const kindWorkflow = "workflow"

// DirectoryWorkflowMigrator copies the email workflows of a directory: the
// account creation and password reset policies and their templates. It runs
// after the accounts of the directory have been copied.
type DirectoryWorkflowMigrator struct {
	env    *Env
	logger *zap.SugaredLogger
}

func NewDirectoryWorkflowMigrator(env *Env) *DirectoryWorkflowMigrator {
	return &DirectoryWorkflowMigrator{env: env, logger: env.named(kindWorkflow)}
}

func (m *DirectoryWorkflowMigrator) CopyAccountCreationPolicy(ctx context.Context, src, dst *stormpath.Directory) (*stormpath.AccountCreationPolicy, error) {
	kv := []interface{}{"name", src.Name}
	sp, err := call(ctx, m.env, m.logger, "Failed to fetch source account creation policy", kv, func() (*stormpath.AccountCreationPolicy, error) {
		return m.env.Source.GetAccountCreationPolicy(ctx, src.Href)
	})
	if err != nil || sp == nil {
		return nil, err
	}
	dp, err := call(ctx, m.env, m.logger, "Failed to fetch destination account creation policy", kv, func() (*stormpath.AccountCreationPolicy, error) {
		return m.env.Destination.GetAccountCreationPolicy(ctx, dst.Href)
	})
	if err != nil || dp == nil {
		return nil, err
	}

	data := *dp
	data.VerificationEmailStatus = sp.VerificationEmailStatus
	data.VerificationSuccessEmailStatus = sp.VerificationSuccessEmailStatus
	data.WelcomeEmailStatus = sp.WelcomeEmailStatus
	out, err := call(ctx, m.env, m.logger, "Failed to copy account creation policy", kv, func() (*stormpath.AccountCreationPolicy, error) {
		return m.env.Destination.UpdateAccountCreationPolicy(ctx, &data)
	})
	if err != nil {
		return nil, err
	}

	for _, kind := range stormpath.AccountCreationTemplates {
		if err := m.copyTemplates(ctx, kv, src, dst, kind); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (m *DirectoryWorkflowMigrator) CopyPasswordPolicy(ctx context.Context, src, dst *stormpath.Directory) (*stormpath.PasswordPolicy, error) {
	kv := []interface{}{"name", src.Name}
	sp, err := call(ctx, m.env, m.logger, "Failed to fetch source password policy", kv, func() (*stormpath.PasswordPolicy, error) {
		return m.env.Source.GetPasswordPolicy(ctx, src.Href)
	})
	if err != nil || sp == nil {
		return nil, err
	}
	dp, err := call(ctx, m.env, m.logger, "Failed to fetch destination password policy", kv, func() (*stormpath.PasswordPolicy, error) {
		return m.env.Destination.GetPasswordPolicy(ctx, dst.Href)
	})
	if err != nil || dp == nil {
		return nil, err
	}

	data := *dp
	data.ResetTokenTTL = sp.ResetTokenTTL
	data.ResetEmailStatus = sp.ResetEmailStatus
	data.ResetSuccessEmailStatus = sp.ResetSuccessEmailStatus
	out, err := call(ctx, m.env, m.logger, "Failed to copy password policy", kv, func() (*stormpath.PasswordPolicy, error) {
		return m.env.Destination.UpdatePasswordPolicy(ctx, &data)
	})
	if err != nil {
		return nil, err
	}

	for _, kind := range stormpath.PasswordResetTemplates {
		if err := m.copyTemplates(ctx, kv, src, dst, kind); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// copyTemplates overwrites the destination templates of one collection with
// the source ones, pairing them up in list order. Templates cannot be created
// through the API, so surplus source templates are dropped.
func (m *DirectoryWorkflowMigrator) copyTemplates(ctx context.Context, kv []interface{}, src, dst *stormpath.Directory, kind stormpath.TemplateKind) error {
	kv = append(kv[:len(kv):len(kv)], "templates", string(kind))
	srcTemplates, err := call(ctx, m.env, m.logger, "Failed to list source email templates", kv, func() ([]stormpath.EmailTemplate, error) {
		return m.env.Source.ListEmailTemplates(ctx, src.Href, kind)
	})
	if err != nil {
		return err
	}
	dstTemplates, err := call(ctx, m.env, m.logger, "Failed to list destination email templates", kv, func() ([]stormpath.EmailTemplate, error) {
		return m.env.Destination.ListEmailTemplates(ctx, dst.Href, kind)
	})
	if err != nil {
		return err
	}
	if len(srcTemplates) > len(dstTemplates) {
		m.logger.Warnw("Destination has fewer email templates than source", append(kv,
			"source", len(srcTemplates),
			"destination", len(dstTemplates))...)
	}

	for i := 0; i < len(srcTemplates) && i < len(dstTemplates); i++ {
		data := writableTemplate(&srcTemplates[i])
		data.Href = dstTemplates[i].Href
		if _, err := call(ctx, m.env, m.logger, "Failed to copy email template", kv, func() (*stormpath.EmailTemplate, error) {
			return m.env.Destination.UpdateEmailTemplate(ctx, data)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writableTemplate(t *stormpath.EmailTemplate) *stormpath.EmailTemplate {
	out := &stormpath.EmailTemplate{
		Name:             t.Name,
		Description:      t.Description,
		FromName:         t.FromName,
		FromEmailAddress: t.FromEmailAddress,
		Subject:          t.Subject,
		TextBody:         t.TextBody,
		HTMLBody:         t.HTMLBody,
		MimeType:         t.MimeType,
	}
	if t.DefaultModel != nil {
		out.DefaultModel = &stormpath.EmailTemplateModel{LinkBaseURL: t.DefaultModel.LinkBaseURL}
	}
	return out
}

// Migrate copies both workflows of a directory. Mirror directories have no
// workflows of their own and are skipped.
func (m *DirectoryWorkflowMigrator) Migrate(ctx context.Context, src, dst *stormpath.Directory) error {
	kv := []interface{}{"name", src.Name}
	if src.ProviderKind() == stormpath.ProviderMirror {
		m.env.Metrics.record(kindWorkflow, outcomeSkipped)
		return nil
	}

	failed := false
	if _, err := m.CopyAccountCreationPolicy(ctx, src, dst); err != nil {
		failed = true
		if err := settle(m.logger, "Failed to copy account creation workflow", kv, err); err != nil {
			return err
		}
	}
	if _, err := m.CopyPasswordPolicy(ctx, src, dst); err != nil {
		failed = true
		if err := settle(m.logger, "Failed to copy password reset workflow", kv, err); err != nil {
			return err
		}
	}
	if failed {
		m.env.Metrics.record(kindWorkflow, outcomeFailed)
		return nil
	}
	m.env.Metrics.record(kindWorkflow, outcomeUpdated)
	m.logger.Infow("Copied directory workflows", kv...)
	return nil
}
