package cmd

import (
	"fmt"

	"db-reconcile/internal/engine"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the resolved table mapping in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, tgt, closeConns, err := openConnections(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if err := closeConns(); err != nil {
				log.Warn("failed to close connections", zap.Error(err))
			}
		}()

		plan, err := engine.New(ref, tgt, cfg.Data, log).Plan(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Println("Insert / update order:")
		for i, p := range plan.Insert {
			fmt.Printf("[%02d] %s -> %s\n", i+1, p.Reference, p.Target)
		}
		if cfg.Data.IncludeDelete {
			fmt.Println("Delete order:")
			for i, p := range plan.Delete {
				fmt.Printf("[%02d] %s\n", i+1, p.Target)
			}
		}
		for _, w := range plan.Warnings {
			fmt.Printf("  - %s\n", w)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(tablesCmd)

	f := tablesCmd.Flags()
	f.StringSliceP("tables", "t", nil, "reference tables to list, globs allowed (default all)")
	f.Bool("include-delete", false, "also list the delete order")
	bind(f, "tables", "data.tables")
	bind(f, "include-delete", "data.include_delete")
}
