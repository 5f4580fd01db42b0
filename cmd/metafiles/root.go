package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ki-ujep/metafiles/pkg/config"
	"github.com/ki-ujep/metafiles/pkg/logging"
	"github.com/ki-ujep/metafiles/pkg/resolve"
	"github.com/ki-ujep/metafiles/pkg/rules"
)

var (
	verbosity  int
	configPath string

	rootCmd = &cobra.Command{
		Use:   "metafiles",
		Short: "Cascading metadata manager for file collections",
		Long: `metafiles resolves per-file metadata from a cascading rule document,
mints ARK identifiers for the files it manages, and maintains a record
database plus a publishable metadata cache.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is ./metafiles.toml)")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

// environment bundles what every subcommand needs: the active location
// and a resolver built from its rule document.
type environment struct {
	cfg      *config.Config
	location config.Location
	resolver *resolve.Resolver
}

func loadEnvironment() (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.ActiveLocation()
	if err != nil {
		return nil, err
	}
	tree, err := rules.NewLoader().LoadFile(loc.MetafilePath())
	if err != nil {
		return nil, err
	}
	return &environment{
		cfg:      cfg,
		location: loc,
		resolver: resolve.NewResolver(tree, cfg.TransformRules()),
	}, nil
}
