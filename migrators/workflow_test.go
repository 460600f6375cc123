package migrators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stormpath "github.com/stormpath/stormpath-migrate"
)

func TestDirectoryWorkflowMigrate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srcDir := seedDirectory(t, f.src, stormpath.Directory{Name: "Eng"})
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})

	creation, err := f.src.GetAccountCreationPolicy(ctx, srcDir.Href)
	require.NoError(t, err)
	creation.VerificationEmailStatus = stormpath.StatusEnabled
	creation.WelcomeEmailStatus = stormpath.StatusEnabled
	_, err = f.src.UpdateAccountCreationPolicy(ctx, creation)
	require.NoError(t, err)

	reset, err := f.src.GetPasswordPolicy(ctx, srcDir.Href)
	require.NoError(t, err)
	reset.ResetTokenTTL = 12
	reset.ResetSuccessEmailStatus = stormpath.StatusDisabled
	_, err = f.src.UpdatePasswordPolicy(ctx, reset)
	require.NoError(t, err)

	templates, err := f.src.ListEmailTemplates(ctx, srcDir.Href, stormpath.TemplateWelcome)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	welcome := templates[0]
	welcome.Subject = "Welcome to Eng"
	welcome.DefaultModel = &stormpath.EmailTemplateModel{LinkBaseURL: "https://eng.example.com/login"}
	_, err = f.src.UpdateEmailTemplate(ctx, &welcome)
	require.NoError(t, err)

	require.NoError(t, NewDirectoryWorkflowMigrator(f.env).Migrate(ctx, srcDir, dstDir))

	gotCreation, err := f.dst.GetAccountCreationPolicy(ctx, dstDir.Href)
	require.NoError(t, err)
	assert.Equal(t, stormpath.StatusEnabled, gotCreation.VerificationEmailStatus)
	assert.Equal(t, stormpath.StatusEnabled, gotCreation.WelcomeEmailStatus)

	gotReset, err := f.dst.GetPasswordPolicy(ctx, dstDir.Href)
	require.NoError(t, err)
	assert.Equal(t, 12, gotReset.ResetTokenTTL)
	assert.Equal(t, stormpath.StatusDisabled, gotReset.ResetSuccessEmailStatus)

	dstTemplates, err := f.dst.ListEmailTemplates(ctx, dstDir.Href, stormpath.TemplateWelcome)
	require.NoError(t, err)
	require.Len(t, dstTemplates, 1)
	assert.Equal(t, "Welcome to Eng", dstTemplates[0].Subject)
	require.NotNil(t, dstTemplates[0].DefaultModel)
	assert.Equal(t, "https://eng.example.com/login", dstTemplates[0].DefaultModel.LinkBaseURL)

	assert.Equal(t, 1, f.count(kindWorkflow, outcomeUpdated))
}

func TestDirectoryWorkflowSkipsMirror(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := &stormpath.Directory{
		Name:     "Corp LDAP",
		Provider: &stormpath.Provider{ProviderID: "ldap"},
	}

	require.NoError(t, NewDirectoryWorkflowMigrator(f.env).Migrate(ctx, src, &stormpath.Directory{Name: "Corp LDAP"}))
	assert.Equal(t, 1, f.count(kindWorkflow, outcomeSkipped))
	assert.Equal(t, 0, f.src.Calls("GetAccountCreationPolicy"))
}

func TestDirectoryWorkflowFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	srcDir := seedDirectory(t, f.src, stormpath.Directory{Name: "Eng"})
	dstDir := seedDirectory(t, f.dst, stormpath.Directory{Name: "Eng"})
	f.dst.FailNext("UpdatePasswordPolicy", permanent())

	require.NoError(t, NewDirectoryWorkflowMigrator(f.env).Migrate(ctx, srcDir, dstDir))
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to copy password reset workflow").Len())
	assert.Equal(t, 1, f.count(kindWorkflow, outcomeFailed))
}
