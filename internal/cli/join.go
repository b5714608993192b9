package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/malbeclabs/fraudprep/pkg/duck"
	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/malbeclabs/fraudprep/pkg/ipjoin"
	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"github.com/malbeclabs/fraudprep/pkg/mmdb"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultJoinTable = "fraud_with_country"

type JoinCmd struct{}

func NewJoinCmd() *JoinCmd {
	return &JoinCmd{}
}

func (c *JoinCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Attach the owning country to every transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			txPath, err := cmd.Flags().GetString("transactions")
			if err != nil {
				return fmt.Errorf("failed to get transactions flag: %w", err)
			}
			rangesPath, err := cmd.Flags().GetString("ranges")
			if err != nil {
				return fmt.Errorf("failed to get ranges flag: %w", err)
			}
			mmdbPath, err := cmd.Flags().GetString("mmdb")
			if err != nil {
				return fmt.Errorf("failed to get mmdb flag: %w", err)
			}
			outPath, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			duckPath, err := cmd.Flags().GetString("duckdb")
			if err != nil {
				return fmt.Errorf("failed to get duckdb flag: %w", err)
			}
			table, err := cmd.Flags().GetString("table")
			if err != nil {
				return fmt.Errorf("failed to get table flag: %w", err)
			}
			cfg, err := joinConfigFromFlags(cmd.Flags())
			if err != nil {
				return err
			}

			if (rangesPath == "") == (mmdbPath == "") {
				return errors.New("specify exactly one of: ranges, mmdb")
			}
			if outPath == "" && duckPath == "" {
				return errors.New("specify at least one of: out, duckdb")
			}

			log, err := commandLogger(cmd)
			if err != nil {
				return err
			}
			cfg.Logger = log
			ctx := cmd.Context()

			tx, err := frame.ReadCSVFile(txPath)
			if err != nil {
				return fmt.Errorf("failed to load transactions: %w", err)
			}

			joiner, err := ipjoin.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create joiner: %w", err)
			}
			defer joiner.Close()

			var (
				joined *frame.Frame
				report *ipjoin.Report
			)
			if rangesPath != "" {
				ranges, err := frame.ReadCSVFile(rangesPath)
				if err != nil {
					return fmt.Errorf("failed to load ip ranges: %w", err)
				}
				joined, report, err = joiner.Join(ctx, tx, ranges)
				if err != nil {
					return fmt.Errorf("failed to join transactions: %w", err)
				}
			} else {
				r, err := mmdb.Open(log, mmdbPath)
				if err != nil {
					return err
				}
				defer r.Close()
				joined, report, err = joiner.JoinWith(ctx, tx, r)
				if err != nil {
					return fmt.Errorf("failed to join transactions: %w", err)
				}
			}

			if err := writeOutputs(ctx, log, joined, outputs{csv: outPath, duckdb: duckPath, table: table}); err != nil {
				return err
			}
			printJoinReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().String("transactions", "", "Path to the transactions CSV")
	cmd.Flags().String("ranges", "", "Path to the IP range CSV")
	cmd.Flags().String("mmdb", "", "Path to a MaxMind country or city database to use instead of a range CSV")
	cmd.Flags().String("out", "", "Path to write the joined CSV")
	cmd.Flags().String("duckdb", "", "Path to a DuckDB database to write the joined table to")
	cmd.Flags().String("table", defaultJoinTable, "DuckDB table name")
	addJoinFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("transactions")

	return cmd
}

// addJoinFlags registers the join tuning flags shared by join and prepare.
func addJoinFlags(fs *pflag.FlagSet) {
	fs.Int("workers", envInt(envWorkers, 1), "Number of workers resolving addresses")
	fs.Int("cache-size", envInt(envCacheSize, 0), "Entries in the lookup cache (0 disables it)")
	fs.Bool("skip-invalid", false, "Drop transactions whose address cannot be parsed instead of failing")
	fs.Bool("allow-overlap", false, "Accept overlapping ranges, resolving each address to the nearest lower bound")
}

func joinConfigFromFlags(fs *pflag.FlagSet) (*ipjoin.Config, error) {
	workers, err := fs.GetInt("workers")
	if err != nil {
		return nil, fmt.Errorf("failed to get workers flag: %w", err)
	}
	cacheSize, err := fs.GetInt("cache-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get cache-size flag: %w", err)
	}
	skipInvalid, err := fs.GetBool("skip-invalid")
	if err != nil {
		return nil, fmt.Errorf("failed to get skip-invalid flag: %w", err)
	}
	allowOverlap, err := fs.GetBool("allow-overlap")
	if err != nil {
		return nil, fmt.Errorf("failed to get allow-overlap flag: %w", err)
	}

	cfg := &ipjoin.Config{
		Workers:   workers,
		CacheSize: cacheSize,
	}
	if skipInvalid {
		cfg.InvalidPolicy = ipjoin.SkipInvalid
	}
	if allowOverlap {
		cfg.Overlap = iprange.OverlapNearestLower
	}
	return cfg, nil
}

type outputs struct {
	csv     string
	duckdb  string
	table   string
	parquet string
}

func writeOutputs(ctx context.Context, log *slog.Logger, f *frame.Frame, out outputs) error {
	if out.csv != "" {
		if err := f.WriteCSVFile(out.csv); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		log.Info("Wrote CSV", "path", out.csv, "rows", f.Len())
	}
	if out.duckdb == "" {
		return nil
	}

	db, err := duck.NewDB(ctx, out.duckdb, log)
	if err != nil {
		return fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer db.Close()

	if err := db.ReplaceTable(ctx, out.table, f); err != nil {
		return err
	}
	n, err := db.Count(ctx, out.table)
	if err != nil {
		return err
	}
	log.Info("Wrote table", "path", out.duckdb, "table", out.table, "rows", n)

	if out.parquet != "" {
		if err := db.ExportParquet(ctx, out.table, out.parquet); err != nil {
			return err
		}
		log.Info("Wrote parquet", "path", out.parquet)
	}
	return nil
}

func printJoinReport(w io.Writer, r *ipjoin.Report) {
	renderTable(w, []string{"Rows", "Count", "Share"}, [][]string{
		{"Total", count(r.Total), percent(r.Total, r.Total)},
		{"Matched", count(r.Matched), percent(r.Matched, r.Total)},
		{"Unmatched", count(r.Unmatched), percent(r.Unmatched, r.Total)},
		{"Invalid", count(r.Invalid), percent(r.Invalid, r.Total)},
	})
}
