package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"db-reconcile/internal/schemadiff"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Write an XML document of the structural differences",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		differ, err := schemadiff.New(cfg.Schema, log)
		if err != nil {
			return err
		}

		ref, tgt, closeConns, err := openConnections(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeConns(); err != nil {
				log.Warn("failed to close connections", zap.Error(err))
			}
		}()

		doc, err := differ.Compare(ctx, ref, tgt)
		if err != nil {
			return err
		}
		if err := doc.WriteFile(cfg.Schema.Output); err != nil {
			return err
		}

		fmt.Printf("\nSchema diff %s -> %s\n", doc.ReferenceSchema, doc.TargetSchema)
		fmt.Printf("  tables: %d added, %d dropped, %d modified\n", len(doc.AddTables), len(doc.DropTables), len(doc.ModifyTables))
		fmt.Printf("  views: %d added, %d dropped, %d updated\n", len(doc.AddViews), len(doc.DropViews), len(doc.UpdateViews))
		fmt.Printf("  sequences: %d added, %d dropped, %d updated\n", len(doc.AddSequences), len(doc.DropSequences), len(doc.UpdateSequences))
		fmt.Printf("  procedures: %d added, %d dropped, %d updated\n", len(doc.AddProcedures), len(doc.DropProcedures), len(doc.UpdateProcedures))
		for _, w := range doc.Warnings {
			fmt.Printf("  - %s\n", w)
		}
		if doc.Empty() {
			fmt.Println("No structural differences.")
		}
		fmt.Printf("Written: %s\n", cfg.Schema.Output)
		return nil
	},
}

func init() {
	RootCmd.AddCommand(schemaCmd)

	f := schemaCmd.Flags()
	f.StringSliceP("tables", "t", nil, "reference tables to compare, globs allowed (default all)")
	f.StringSlice("table-map", nil, "reference=target pairs for renamed tables")
	f.StringP("output", "o", "", "path of the XML change document")
	f.Bool("generic-types", false, "compare column types by generic category")

	bind(f, "tables", "schema.tables")
	bind(f, "table-map", "schema.table_map")
	bind(f, "output", "schema.output")
	bind(f, "generic-types", "schema.generic_types")

	for _, toggle := range []struct {
		flag, key string
		def       bool
	}{
		{"foreign-keys", "foreign_keys", true},
		{"primary-keys", "primary_keys", true},
		{"indexes", "indexes", true},
		{"constraints", "constraints", true},
		{"views", "views", true},
		{"sequences", "sequences", true},
		{"procedures", "procedures", true},
		{"triggers", "triggers", true},
		{"partitions", "partitions", false},
		{"grants", "grants", false},
	} {
		f.Bool(toggle.flag, toggle.def, "compare "+toggle.flag)
		bind(f, toggle.flag, "schema."+toggle.key)
	}
}
