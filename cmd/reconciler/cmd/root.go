package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"deposit-reconciler/cmd/reconciler/config"
	"deposit-reconciler/internal/daterange"
	"deposit-reconciler/internal/matcher"
	"deposit-reconciler/pkg/errors"
	"deposit-reconciler/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cli holds the state of one invocation
type cli struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	log     logger.Logger
}

// NewRootCommand builds the command tree with its own configuration instance
func NewRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}
	config.SetDefaults(c.v)

	rootCmd := &cobra.Command{
		Use:   "reconciler",
		Short: "Stripe deposit reconciliation tool",
		Long: `Reconciler settles a Stripe payout against a Commerce7 order export.

It keeps the orders the payout paid for, totals their products, shipping,
taxes and bottle deposits, and checks that the total less Stripe fees is the
deposited amount.

Examples:
  reconciler url --stripe-file payout.csv
  reconciler reconcile --stripe-file payout.csv --order-files orders.csv
  reconciler reconcile --stripe-payout po_123 --order-files a.csv,b.xlsx --workbook recon.xlsx
  reconciler payout po_123 --output-file payout.csv`,
		Version:           getVersionString(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.initConfig,
	}

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (optional)")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")
	flags.String("timezone", "", fmt.Sprintf("zone order paid dates are recorded in (default %s)", matcher.DefaultTimezone))
	flags.Duration("max-time-delta", 0, fmt.Sprintf("payment to order time difference below which orders match (default %s)", matcher.DefaultMaxTimeDelta))
	flags.String("url-base", "", "order search URL the date range is appended to")
	flags.Duration("padding", 0, fmt.Sprintf("padding added around the payout date range (default %s)", daterange.DefaultPadding))

	// Bind flags to viper
	c.v.BindPFlag(config.KeyVerbose, flags.Lookup("verbose"))
	c.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	c.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))
	c.v.BindPFlag(config.KeyTimezone, flags.Lookup("timezone"))
	c.v.BindPFlag(config.KeyMaxTimeDelta, flags.Lookup("max-time-delta"))
	c.v.BindPFlag(config.KeyURLBase, flags.Lookup("url-base"))
	c.v.BindPFlag(config.KeyURLPadding, flags.Lookup("padding"))

	rootCmd.AddCommand(
		newReconcileCommand(c),
		newURLCommand(c),
		newPayoutCommand(c),
		newVersionCommand(),
	)

	return rootCmd
}

// Execute runs the CLI and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// Run executes the command line args and reports any error on stderr
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return NewCLIErrorHandler(stderr, verboseArg(args)).HandleError(err)
	}
	return 0
}

// initConfig reads in the config file and ENV variables, then sets up logging
func (c *cli) initConfig(cmd *cobra.Command, args []string) error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
		if err := c.v.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", c.cfgFile, err)
		}
	}

	// Read environment variables that match, e.g. RECONCILER_STRIPE_API_KEY
	c.v.SetEnvPrefix("RECONCILER")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	logConfig, err := config.CreateLoggerConfig(c.v.GetString(config.KeyLogLevel), c.v.GetString(config.KeyLogFormat), c.v.GetBool(config.KeyVerbose))
	if err != nil {
		return err
	}
	logConfig.Writer = cmd.ErrOrStderr()

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return err
	}
	logger.SetGlobalLogger(log)
	c.log = log.WithComponent("cli")

	if c.cfgFile != "" {
		c.log.WithField("config_file", c.v.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "reconciler %s\n", getVersionString())
			return nil
		},
	}
}

// verboseArg reports whether verbose output was requested, for errors
// raised before configuration is loaded
func verboseArg(args []string) bool {
	for _, a := range args {
		if a == "-v" || a == "--verbose" || a == "--verbose=true" {
			return true
		}
	}
	return false
}
