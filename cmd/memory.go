// -- cmd/memory.go --
package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/memory"
	"github.com/xkilldash9x/locus/internal/observability"
)

var memoryShowStatic bool

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "List the selectors persisted in the memory store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := memory.NewStore(observability.GetLogger(), appConfig.Store)
		if err != nil {
			return err
		}

		entries := store.LearnedEntries()
		if memoryShowStatic {
			entries = append(store.StaticEntries(), entries...)
		}
		if entries == nil {
			entries = []schemas.MemoryEntry{}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	},
}

func init() {
	memoryCmd.Flags().BoolVar(&memoryShowStatic, "static", false, "include the read-only static seed entries")
	rootCmd.AddCommand(memoryCmd)
}
