// Package main provides linkctl, a command line client for the link graph.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"linkgraph/infrastructure/config"
	"linkgraph/infrastructure/di"
	"linkgraph/pkg/common"
)

const (
	envPrefix = "LINKGRAPH"

	keyTenant   = "tenant"
	keyUser     = "user"
	keyStorage  = "storage"
	keyDSN      = "sql_dsn"
	keyCache    = "cache"
	keyLogLevel = "log_level"

	defaultStorage = config.StorageSQLite
	defaultDSN     = "linkgraph.db"
)

var (
	// configFile is set by the --config flag.
	configFile string

	settings = viper.New()

	// app is the wired container, initialized on startup.
	app     *di.Container
	cleanup func()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "linkctl",
	Short: "linkctl manages typed links between business entities",
	Long: `linkctl creates, queries and traverses the links between tasks, projects,
documents and the other entity types of a tenant.

Entities are written as type:id, for example task:42 or wiki_page:onboarding.
Settings come from flags, LINKGRAPH_* environment variables and the YAML file
given with --config, in that order of precedence.`,
	SilenceUsage:       true,
	PersistentPreRunE:  initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return closeApp(cmd.Context()) },
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "YAML config file")
	flags.String(keyTenant, "", "tenant to operate on")
	flags.String(keyUser, "linkctl", "user recorded as the link creator")
	flags.String(keyStorage, defaultStorage, "storage backend: memory, sqlite, postgres or dynamodb")
	flags.String("dsn", defaultDSN, "database DSN for sqlite or postgres storage")
	flags.String(keyCache, config.CacheNone, "cache backend: none, memory or badger")
	flags.String("log-level", "warn", "log level")

	_ = settings.BindPFlag(keyTenant, flags.Lookup(keyTenant))
	_ = settings.BindPFlag(keyUser, flags.Lookup(keyUser))
	_ = settings.BindPFlag(keyStorage, flags.Lookup(keyStorage))
	_ = settings.BindPFlag(keyDSN, flags.Lookup("dsn"))
	_ = settings.BindPFlag(keyCache, flags.Lookup(keyCache))
	_ = settings.BindPFlag(keyLogLevel, flags.Lookup("log-level"))

	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
	addLinkCommands(rootCmd)
	addGraphCommands(rootCmd)
	addBulkCommands(rootCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "linkctl v0.1.0")
	},
}

// initApp resolves the configuration and wires the service.
func initApp(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	cfg, err := loadConfig(configFile, settings)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	container, closeFn, err := di.InitializeContainer(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	app, cleanup = container, closeFn

	ctx := common.EnrichContext(cmd.Context(), settings.GetString(keyTenant), settings.GetString(keyUser), uuid.NewString())
	cmd.SetContext(ctx)
	return nil
}

// loadConfig layers the CLI settings over the service configuration.
func loadConfig(path string, v *viper.Viper) (*config.Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	cfg.Storage = strings.ToLower(v.GetString(keyStorage))
	cfg.SQLDSN = v.GetString(keyDSN)
	cfg.Cache = strings.ToLower(v.GetString(keyCache))
	cfg.LogLevel = v.GetString(keyLogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func closeApp(ctx context.Context) error {
	if app == nil {
		return nil
	}
	if app.MetricsPublisher != nil {
		if err := app.MetricsPublisher.Flush(ctx); err != nil {
			app.Logger.Warn("Failed to flush metrics", zap.Error(err))
		}
	}
	_ = app.Logger.Sync()
	cleanup()
	app = nil
	return nil
}

// tenant returns the tenant the command operates on.
func tenant() (string, error) {
	t := settings.GetString(keyTenant)
	if t == "" {
		return "", fmt.Errorf("a tenant is required (--tenant or %s_TENANT)", envPrefix)
	}
	return t, nil
}
