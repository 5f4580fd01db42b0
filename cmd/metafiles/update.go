package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ki-ujep/metafiles/pkg/store"
	"github.com/ki-ujep/metafiles/pkg/update"
)

var (
	updateStrict  bool
	updateWorkers int
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Record metadata for every file under the data root",
	Long: `Update walks the location's data root, resolves metadata for each
file, mints its identifier, and records the result in the file
database. Existing records that differ are updated with an audit log
entry, or rejected with --strict.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnvironment()
		if err != nil {
			return err
		}

		dbPath := env.location.DatabasePath()
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return err
		}
		st, err := store.Open(cmd.Context(), dbPath)
		if err != nil {
			return err
		}
		defer st.Close()

		policy := store.DefaultPolicy()
		if updateStrict {
			policy = store.StrictPolicy()
		}

		u := update.New(env.resolver, st, update.Options{
			NAAN:    env.cfg.NAAN,
			Root:    env.location.Path,
			Policy:  policy,
			Workers: updateWorkers,
		})
		summary, err := u.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d files recorded, %d conflicts\n",
			summary.Files, summary.Conflicts)
		return nil
	},
}

func init() {
	updateCmd.Flags().BoolVar(&updateStrict, "strict", false, "Reject changes to existing records")
	updateCmd.Flags().IntVar(&updateWorkers, "workers", 0, "Concurrent files to process (default: number of CPUs)")
}
