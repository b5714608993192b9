package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/malbeclabs/fraudprep/pkg/ipjoin"
	"github.com/malbeclabs/fraudprep/pkg/prep"
	"github.com/spf13/cobra"
)

const defaultPrepareTable = "fraud_prepared"

var datetimeColumns = []string{"signup_time", prep.ColumnPurchaseTime}

type PrepareCmd struct{}

func NewPrepareCmd() *PrepareCmd {
	return &PrepareCmd{}
}

func (c *PrepareCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Clean, geolocate and feature-engineer the fraud dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			fraudPath, err := cmd.Flags().GetString("fraud")
			if err != nil {
				return fmt.Errorf("failed to get fraud flag: %w", err)
			}
			rangesPath, err := cmd.Flags().GetString("ranges")
			if err != nil {
				return fmt.Errorf("failed to get ranges flag: %w", err)
			}
			outPath, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			missingStr, err := cmd.Flags().GetString("missing")
			if err != nil {
				return fmt.Errorf("failed to get missing flag: %w", err)
			}
			fillValue, err := cmd.Flags().GetString("fill-value")
			if err != nil {
				return fmt.Errorf("failed to get fill-value flag: %w", err)
			}
			scaleStr, err := cmd.Flags().GetString("scale")
			if err != nil {
				return fmt.Errorf("failed to get scale flag: %w", err)
			}
			scaleCols, err := cmd.Flags().GetStringSlice("scale-columns")
			if err != nil {
				return fmt.Errorf("failed to get scale-columns flag: %w", err)
			}
			encodeCols, err := cmd.Flags().GetStringSlice("encode-columns")
			if err != nil {
				return fmt.Errorf("failed to get encode-columns flag: %w", err)
			}
			duckPath, err := cmd.Flags().GetString("duckdb")
			if err != nil {
				return fmt.Errorf("failed to get duckdb flag: %w", err)
			}
			table, err := cmd.Flags().GetString("table")
			if err != nil {
				return fmt.Errorf("failed to get table flag: %w", err)
			}
			parquetPath, err := cmd.Flags().GetString("parquet")
			if err != nil {
				return fmt.Errorf("failed to get parquet flag: %w", err)
			}
			cfg, err := joinConfigFromFlags(cmd.Flags())
			if err != nil {
				return err
			}

			method, err := prep.ParseMissingMethod(missingStr)
			if err != nil {
				return err
			}
			missing := prep.MissingOptions{Method: method}
			if method == prep.MissingFill {
				if fillValue == "" {
					return errors.New("fill-value is required with --missing fill")
				}
				missing.FillValue = parseFillValue(fillValue)
			}
			scaler, err := prep.ParseScaler(scaleStr)
			if err != nil {
				return err
			}
			if outPath == "" && duckPath == "" {
				return errors.New("specify at least one of: out, duckdb")
			}
			if parquetPath != "" && duckPath == "" {
				return errors.New("parquet export requires duckdb")
			}

			log, err := commandLogger(cmd)
			if err != nil {
				return err
			}
			cfg.Logger = log
			ctx := cmd.Context()

			fraud, err := frame.ReadCSVFile(fraudPath)
			if err != nil {
				return fmt.Errorf("failed to load fraud data: %w", err)
			}
			ranges, err := frame.ReadCSVFile(rangesPath)
			if err != nil {
				return fmt.Errorf("failed to load ip ranges: %w", err)
			}
			loaded := fraud.Len()

			f, err := prep.HandleMissing(fraud, missing)
			if err != nil {
				return fmt.Errorf("failed to handle missing values: %w", err)
			}
			afterMissing := f.Len()
			f = prep.RemoveDuplicates(f)
			afterDedup := f.Len()

			var types prep.TypeSpec
			for _, col := range datetimeColumns {
				if f.Has(col) {
					types.Datetime = append(types.Datetime, col)
				}
			}
			f, err = prep.CorrectTypes(f, types)
			if err != nil {
				return fmt.Errorf("failed to correct types: %w", err)
			}

			joiner, err := ipjoin.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to create joiner: %w", err)
			}
			defer joiner.Close()
			f, report, err := joiner.Join(ctx, f, ranges)
			if err != nil {
				return fmt.Errorf("failed to join transactions: %w", err)
			}

			f, err = prep.EngineerFeatures(f)
			if err != nil {
				return fmt.Errorf("failed to engineer features: %w", err)
			}
			if scaler != nil && len(scaleCols) > 0 {
				f, err = prep.Scale(f, scaleCols, scaler)
				if err != nil {
					return fmt.Errorf("failed to scale columns: %w", err)
				}
			}
			if len(encodeCols) > 0 {
				f, err = prep.EncodeLabels(f, encodeCols)
				if err != nil {
					return fmt.Errorf("failed to encode columns: %w", err)
				}
			}
			log.Debug("Prepared dataset", "rows", f.Len(), "columns", len(f.Columns()))

			if err := writeOutputs(ctx, log, f, outputs{csv: outPath, duckdb: duckPath, table: table, parquet: parquetPath}); err != nil {
				return err
			}
			printPrepareSummary(cmd.OutOrStdout(), []prepareStep{
				{"Loaded", loaded},
				{"After missing values", afterMissing},
				{"After duplicates", afterDedup},
				{"Invalid addresses", report.Invalid},
				{"Without country", report.Unmatched},
				{"Prepared", f.Len()},
			})
			return nil
		},
	}

	cmd.Flags().String("fraud", "", "Path to the fraud transactions CSV")
	cmd.Flags().String("ranges", "", "Path to the IP range CSV")
	cmd.Flags().String("out", "", "Path to write the prepared CSV")
	cmd.Flags().String("missing", "drop", "How to handle missing values (drop, mean, fill)")
	cmd.Flags().String("fill-value", "", "Value used with --missing fill")
	cmd.Flags().String("scale", "", "Scaler applied to --scale-columns (standard, minmax)")
	cmd.Flags().StringSlice("scale-columns", nil, "Columns to scale")
	cmd.Flags().StringSlice("encode-columns", nil, "Columns to label encode")
	cmd.Flags().String("duckdb", "", "Path to a DuckDB database to write the prepared table to")
	cmd.Flags().String("table", defaultPrepareTable, "DuckDB table name")
	cmd.Flags().String("parquet", "", "Path to export the prepared table as Parquet (requires --duckdb)")
	addJoinFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("fraud")
	_ = cmd.MarkFlagRequired("ranges")

	return cmd
}

func parseFillValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

type prepareStep struct {
	name string
	rows int
}

func printPrepareSummary(w io.Writer, steps []prepareStep) {
	rows := make([][]string, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, []string{s.name, count(s.rows)})
	}
	renderTable(w, []string{"Step", "Rows"}, rows)
}
