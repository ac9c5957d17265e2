package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"db-reconcile/internal/datadiff"
	"db-reconcile/internal/engine"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	alternateKeys []string
	noProgress    bool
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Generate scripts that reconcile the target's data with the reference",
	RunE: func(cmd *cobra.Command, args []string) error {
		// repeatable flag values contain commas, so they bypass viper
		if cmd.Flags().Changed("alternate-key") {
			cfg.Data.AlternateKeys = alternateKeys
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ref, tgt, closeConns, err := openConnections(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeConns(); err != nil {
				log.Warn("failed to close connections", zap.Error(err))
			}
		}()

		e := engine.New(ref, tgt, cfg.Data, log)
		var bar *progressBar
		if !noProgress {
			bar = newProgressBar()
			e.WithProgress(bar)
		}

		start := time.Now()
		res, err := e.Run(ctx)
		if bar != nil {
			bar.stop()
		}
		if err != nil {
			return err
		}

		printReport(res, time.Since(start))
		if res.Status == engine.StatusFailure {
			return fmt.Errorf("data diff failed: %w", res.Failure())
		}
		return nil
	},
}

func printReport(res *engine.Result, elapsed time.Duration) {
	fmt.Println("\nSummary Report (Dependency Order):")
	for i, t := range res.Tables {
		icon := "✓"
		if t.Err != nil || t.Status != datadiff.StatusOK {
			icon = "!"
		}
		fmt.Printf("[%s] [%02d/%02d] %-24s : %d inserts, %d updates, %d deletes - %s\n",
			icon, i+1, len(res.Tables), t.Target, t.Stats.Inserts, t.Stats.Updates, t.Stats.Deletes, t.Status)
		if t.Message != "" {
			fmt.Printf("    └ %s\n", t.Message)
		}
	}
	fmt.Println("--------------------------------------------------")
	for _, m := range res.Messages {
		fmt.Printf("  - %s\n", m)
	}
	ins, upd, del := res.Written()
	fmt.Printf("Status: %s | %d inserts, %d updates, %d deletes | %s\n", res.Status, ins, upd, del, elapsed.Round(time.Millisecond))
	fmt.Printf("Driver: %s\n", res.MainFile)
}

// progressBar shows one step per table on stderr.
type progressBar struct {
	p   *uiprogress.Progress
	bar *uiprogress.Bar

	mu      sync.Mutex
	current string
}

func newProgressBar() *progressBar {
	p := uiprogress.New()
	p.SetOut(os.Stderr)
	return &progressBar{p: p}
}

func (b *progressBar) Start(total int) {
	if total < 1 {
		total = 1
	}
	b.bar = b.p.AddBar(total).AppendCompleted().PrependElapsed()
	b.bar.PrependFunc(func(*uiprogress.Bar) string {
		b.mu.Lock()
		defer b.mu.Unlock()
		return fmt.Sprintf("%-24.24s", b.current)
	})
	b.p.Start()
}

func (b *progressBar) Step(table string) {
	b.mu.Lock()
	b.current = table
	b.mu.Unlock()
	if b.bar != nil {
		b.bar.Incr()
	}
}

func (b *progressBar) stop() {
	if b.bar != nil {
		b.p.Stop()
	}
}

func init() {
	RootCmd.AddCommand(dataCmd)

	f := dataCmd.Flags()
	f.StringSliceP("tables", "t", nil, "reference tables to compare, globs allowed (default all)")
	f.StringSlice("table-map", nil, "reference=target pairs for renamed tables")
	f.Bool("include-delete", false, "also delete target rows missing from the reference")
	f.StringSlice("ignore-columns", nil, "columns excluded from comparison and scripts")
	f.Bool("exclude-real-pk", false, "leave real primary key columns out of INSERT statements")
	f.Bool("exclude-ignored-from-keys", false, "drop ignored columns from resolved keys")
	f.StringArrayVar(&alternateKeys, "alternate-key", nil, "table=col1,col2 key used instead of the primary key (repeatable)")
	f.String("format", "", "output format (sql, xml)")
	f.String("blob-mode", "", "LOB comparison (binary, text, always)")
	f.String("blob-encoding", "", "character encoding of LOBs in text mode")
	f.Bool("single-file", false, "write every statement into the driver script")
	f.Bool("check-dependencies", true, "order tables by foreign key")
	f.Bool("include-all-dependencies", false, "add every table referencing a selected table")
	f.Bool("cdata", false, "wrap XML values in CDATA sections")
	f.StringP("output-dir", "o", "", "directory receiving the scripts")
	f.String("base-name", "", "name of the driver script without extension")
	f.String("include-directive", "", "prefix of file includes in the driver script")
	f.BoolVar(&noProgress, "no-progress", false, "hide the progress bar")

	for flag, key := range map[string]string{
		"tables":                    "data.tables",
		"table-map":                 "data.table_map",
		"include-delete":            "data.include_delete",
		"ignore-columns":            "data.ignore_columns",
		"exclude-real-pk":           "data.exclude_real_pk",
		"exclude-ignored-from-keys": "data.exclude_ignored_from_keys",
		"format":                    "data.format",
		"blob-mode":                 "data.blob_mode",
		"blob-encoding":             "data.blob_encoding",
		"single-file":               "data.single_file",
		"check-dependencies":        "data.check_dependencies",
		"include-all-dependencies":  "data.include_all_dependencies",
		"cdata":                     "data.cdata",
		"output-dir":                "data.output_dir",
		"base-name":                 "data.base_name",
		"include-directive":         "data.include_directive",
	} {
		bind(f, flag, key)
	}
}

var _ engine.Progress = (*progressBar)(nil)
