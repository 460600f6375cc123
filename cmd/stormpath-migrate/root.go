package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	stormpath "github.com/stormpath/stormpath-migrate"
	"github.com/stormpath/stormpath-migrate/config"
	"github.com/stormpath/stormpath-migrate/memtenant"
	"github.com/stormpath/stormpath-migrate/migrators"
)

var version = "dev"

type options struct {
	configPath    string
	envFiles      []string
	from          string
	verbose       bool
	srcURL        string
	dstURL        string
	mappingOutput string
	metricsFile   string
	dryRun        bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "stormpath-migrate [src-id:secret] [dst-id:secret] [password-file]",
		Short: "Copy every resource of one identity tenant into another",
		Long: `stormpath-migrate copies directories, groups, accounts, organizations,
applications and their policies from a source tenant into a destination
tenant, then rewrites source hrefs stored in custom data.

Credentials may also be supplied through STORMPATH_SRC_API_KEY and
STORMPATH_DST_API_KEY, directly or from a .env file.

Examples:
  # Migrate with exported password hashes
  stormpath-migrate SRCID:SRCSECRET DSTID:DSTSECRET passwords.jsonl

  # Only resources created since the start of 2017, writing the href mapping
  stormpath-migrate SRCID:SRCSECRET DSTID:DSTSECRET passwords.jsonl --from 2017-01-01 --mapping-output mapping.csv

  # Rehearse against an in-memory destination
  stormpath-migrate SRCID:SRCSECRET DSTID:DSTSECRET passwords.jsonl --dry-run
`,
		Args:          cobra.MaximumNArgs(3),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "Environment files to load (default .env when present)")
	flags.StringVar(&opts.from, "from", "", "Only copy resources created on or after this date (YYYY-MM-DD)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level in a human readable format")
	flags.StringVar(&opts.srcURL, "src-url", "", "Source API base URL (default "+stormpath.DefaultBaseURL+")")
	flags.StringVar(&opts.dstURL, "dst-url", "", "Destination API base URL (default "+stormpath.DefaultBaseURL+")")
	flags.StringVar(&opts.mappingOutput, "mapping-output", "", "Write the original_href,migrated_href mapping to this CSV file")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write run counters to this file in Prometheus text format")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Read the source tenant but write to an in-memory destination")
	return cmd
}

// loadConfig merges, in increasing precedence, defaults, the config file,
// the environment, flags and positional arguments.
func loadConfig(cmd *cobra.Command, opts *options, args []string) (*config.Config, error) {
	if err := config.LoadEnv(opts.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("from") {
		cfg.From = opts.from
	}
	if flags.Changed("verbose") {
		cfg.Log.Verbose = opts.verbose
	}
	if flags.Changed("src-url") {
		cfg.Source.URL = opts.srcURL
	}
	if flags.Changed("dst-url") {
		cfg.Destination.URL = opts.dstURL
	}
	if flags.Changed("mapping-output") {
		cfg.MappingOutput = opts.mappingOutput
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	if len(args) > 0 {
		cfg.Source.APIKey = args[0]
	}
	if len(args) > 1 {
		cfg.Destination.APIKey = args[1]
	}
	if len(args) > 2 {
		cfg.PasswordFile = args[2]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, errors.Wrap(err, "creating logger")
	}
	return logger.Sugar(), nil
}

// openTenant connects to a tenant and proves the credentials by fetching
// the current tenant.
func openTenant(ctx context.Context, logger *zap.SugaredLogger, role string, e config.Endpoint) (*stormpath.Client, error) {
	id, secret, err := config.ParseAPIKey(e.APIKey)
	if err != nil {
		return nil, errors.Wrapf(err, "%s credentials", role)
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "%s url", role)
	}
	client, err := stormpath.Open(*u,
		stormpath.WithAPIKey(id, secret),
		stormpath.WithLogger(logger.Named(role)),
		stormpath.WithUserAgent("stormpath-migrate/"+version))
	if err != nil {
		return nil, err
	}
	tenant, err := client.CurrentTenant(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "validating %s credentials", role)
	}
	logger.Infow("Connected", "role", role, "tenant", tenant.Name, "url", client.String())
	return client, nil
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	cfg, err := loadConfig(cmd, opts, args)
	if err != nil {
		return reportError(nil, err)
	}
	logger, err := newLogger(cfg.Log.Verbose)
	if err != nil {
		return reportError(nil, err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openTenant(ctx, logger, "source", cfg.Source)
	if err != nil {
		return reportError(logger, err)
	}
	var dst stormpath.TenantAPI
	if opts.dryRun {
		mem, err := memtenant.New()
		if err != nil {
			return reportError(logger, err)
		}
		logger.Infow("Dry run, writes go to an in-memory tenant")
		dst = mem
	} else {
		client, err := openTenant(ctx, logger, "destination", cfg.Destination)
		if err != nil {
			return reportError(logger, err)
		}
		dst = client
	}

	from, err := cfg.FromDate()
	if err != nil {
		return reportError(logger, err)
	}
	metrics := migrators.NewMetrics()
	migratorOpts := []migrators.Option{
		migrators.WithLogger(logger),
		migrators.WithRetryPolicy(cfg.RetryPolicy()),
		migrators.WithFromDate(from),
		migrators.WithSkipDirectories(cfg.Skip.Directories...),
		migrators.WithSkipApplications(cfg.Skip.Applications...),
		migrators.WithMetrics(metrics),
	}

	if cfg.PasswordFile != "" {
		passwords, err := migrators.OpenPasswordFile(cfg.PasswordFile)
		if err != nil {
			return reportError(logger, err)
		}
		migratorOpts = append(migratorOpts, migrators.WithPasswords(passwords))
	} else {
		logger.Warnw("No password file given, cloud accounts get random passwords")
	}

	if cfg.MappingOutput != "" {
		f, err := os.Create(cfg.MappingOutput)
		if err != nil {
			return reportError(logger, errors.Wrap(err, "creating mapping output"))
		}
		defer f.Close()
		migratorOpts = append(migratorOpts, migrators.WithMappingOutput(f))
	}

	m, err := migrators.New(src, dst, migratorOpts...)
	if err != nil {
		return reportError(logger, err)
	}
	runErr := m.Migrate(ctx)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Errorw("Failed to write metrics", "error", err)
		}
	}
	if runErr != nil {
		return reportError(logger, runErr)
	}
	return nil
}

func reportError(logger *zap.SugaredLogger, err error) error {
	if logger == nil {
		_, _ = os.Stderr.WriteString("stormpath-migrate: " + err.Error() + "\n")
		return err
	}
	logger.Errorw("Migration failed", "error", err)
	return err
}
