package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/malbeclabs/fraudprep/pkg/eda"
	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/spf13/cobra"
)

type EDACmd struct{}

func NewEDACmd() *EDACmd {
	return &EDACmd{}
}

func (c *EDACmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eda",
		Short: "Exploratory statistics for a CSV dataset",
	}
	cmd.AddCommand(
		c.univariateCommand(),
		c.bivariateCommand(),
	)
	return cmd
}

func (c *EDACmd) univariateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "univariate",
		Short: "Summaries, histograms and boxplots of numeric columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			columns, err := cmd.Flags().GetStringSlice("columns")
			if err != nil {
				return fmt.Errorf("failed to get columns flag: %w", err)
			}
			bins, err := cmd.Flags().GetInt("bins")
			if err != nil {
				return fmt.Errorf("failed to get bins flag: %w", err)
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}

			f, err := frame.ReadCSVFile(input)
			if err != nil {
				return err
			}
			reports, err := eda.Univariate(f, columns, bins)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			printUnivariate(cmd.OutOrStdout(), reports)
			return nil
		},
	}

	cmd.Flags().String("input", "", "Path to the CSV to describe")
	cmd.Flags().StringSlice("columns", nil, "Columns to describe (default: every numeric column)")
	cmd.Flags().Int("bins", eda.DefaultBins, "Number of histogram bins")
	cmd.Flags().Bool("json", false, "Print chart data as JSON")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func (c *EDACmd) bivariateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bivariate",
		Short: "Scatterplot data and correlation of two columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := cmd.Flags().GetString("input")
			if err != nil {
				return fmt.Errorf("failed to get input flag: %w", err)
			}
			x, err := cmd.Flags().GetString("x")
			if err != nil {
				return fmt.Errorf("failed to get x flag: %w", err)
			}
			y, err := cmd.Flags().GetString("y")
			if err != nil {
				return fmt.Errorf("failed to get y flag: %w", err)
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return fmt.Errorf("failed to get json flag: %w", err)
			}

			f, err := frame.ReadCSVFile(input)
			if err != nil {
				return err
			}
			s, err := eda.Bivariate(f, x, y)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, s.Title)
			fmt.Fprintln(w, "Points:", count(len(s.Points)))
			fmt.Fprintln(w, s.CorrelationText())
			return nil
		},
	}

	cmd.Flags().String("input", "", "Path to the CSV to read")
	cmd.Flags().String("x", "", "Column on the x axis")
	cmd.Flags().String("y", "", "Column on the y axis")
	cmd.Flags().Bool("json", false, "Print chart data as JSON")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("x")
	_ = cmd.MarkFlagRequired("y")

	return cmd
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printUnivariate(w io.Writer, reports []eda.ColumnReport) {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		s := r.Summary
		rows = append(rows, []string{
			r.Column,
			count(s.Count),
			stat(float64(s.Mean)),
			stat(float64(s.Std)),
			stat(float64(s.Min)),
			stat(float64(s.Q1)),
			stat(float64(s.Median)),
			stat(float64(s.Q3)),
			stat(float64(s.Max)),
			count(len(r.Boxplot.Outliers)),
		})
	}
	renderTable(w, []string{
		"Column", "Count", "Mean", "Std", "Min", "Q1", "Median", "Q3", "Max", "Outliers\n(#)",
	}, rows)

	for _, r := range reports {
		fmt.Fprintln(w, r.Histogram.Title)
		fmt.Fprintln(w, histogramLine(r.Histogram))
	}
}

// histogramLine renders bin counts as a single line of bars.
func histogramLine(h eda.Histogram) string {
	const levels = "▁▂▃▄▅▆▇█"
	bars := []rune(levels)
	peak := 0
	for _, c := range h.Counts {
		peak = max(peak, c)
	}
	var b strings.Builder
	for _, c := range h.Counts {
		if peak == 0 {
			b.WriteRune(bars[0])
			continue
		}
		b.WriteRune(bars[c*(len(bars)-1)/peak])
	}
	return b.String()
}
