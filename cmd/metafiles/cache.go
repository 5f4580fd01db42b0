package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ki-ujep/metafiles/pkg/cache"
	"github.com/ki-ujep/metafiles/pkg/rdf"
	"github.com/ki-ujep/metafiles/pkg/store"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Rebuild the published metadata cache",
	Long: `Cache rebuilds the cache database from the file records: link
patterns are expanded to the identifiers of their targets and each
record's metadata is rendered as RDF/XML. A JSON export of the cache
is written alongside it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		files, err := store.Open(ctx, env.location.DatabasePath())
		if err != nil {
			return err
		}
		defer files.Close()

		cacheStore, err := store.OpenCache(ctx, env.location.CachePath())
		if err != nil {
			return err
		}
		defer cacheStore.Close()

		builder := cache.NewBuilder(files, cacheStore, rdf.NewExporter(rdf.DefaultPrefixes()), env.location)
		n, err := builder.Run(ctx)
		if err != nil {
			return err
		}
		if err := builder.WriteContents(ctx, env.location.ContentsPath()); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d records cached, contents written to %s\n",
			n, env.location.ContentsPath())
		return nil
	},
}
