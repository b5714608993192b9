package cli

import (
	"fmt"

	"github.com/malbeclabs/fraudprep/pkg/frame"
	"github.com/malbeclabs/fraudprep/pkg/ipjoin"
	"github.com/malbeclabs/fraudprep/pkg/iprange"
	"github.com/malbeclabs/fraudprep/pkg/mmdb"
	"github.com/spf13/cobra"
)

type MMDBCmd struct{}

func NewMMDBCmd() *MMDBCmd {
	return &MMDBCmd{}
}

func (c *MMDBCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mmdb",
		Short: "MaxMind database tools",
	}
	cmd.AddCommand(c.exportCommand())
	return cmd
}

func (c *MMDBCmd) exportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an IP range CSV as a GeoLite2-Country style database",
		RunE: func(cmd *cobra.Command, args []string) error {
			rangesPath, err := cmd.Flags().GetString("ranges")
			if err != nil {
				return fmt.Errorf("failed to get ranges flag: %w", err)
			}
			outPath, err := cmd.Flags().GetString("out")
			if err != nil {
				return fmt.Errorf("failed to get out flag: %w", err)
			}
			description, err := cmd.Flags().GetString("description")
			if err != nil {
				return fmt.Errorf("failed to get description flag: %w", err)
			}
			ipVersion, err := cmd.Flags().GetInt("ip-version")
			if err != nil {
				return fmt.Errorf("failed to get ip-version flag: %w", err)
			}

			log, err := commandLogger(cmd)
			if err != nil {
				return err
			}

			f, err := frame.ReadCSVFile(rangesPath)
			if err != nil {
				return fmt.Errorf("failed to load ip ranges: %w", err)
			}
			ranges, err := ipjoin.RangesFromFrame(f, ipjoin.RangeColumns{})
			if err != nil {
				return err
			}
			// Overlapping ranges would silently shadow each other in the tree.
			ix, err := iprange.Build(ranges)
			if err != nil {
				return err
			}

			n, err := mmdb.ExportFile(outPath, ix.Ranges(), mmdb.ExportOptions{
				Description: description,
				IPVersion:   ipVersion,
			})
			if err != nil {
				return err
			}
			log.Debug("Exported mmdb", "path", outPath, "ranges", ix.Len(), "prefixes", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s prefixes for %s ranges to %s\n", count(n), count(ix.Len()), outPath)
			return nil
		},
	}

	cmd.Flags().String("ranges", "", "Path to the IP range CSV")
	cmd.Flags().String("out", "", "Path to write the database")
	cmd.Flags().String("description", "", "Database description")
	cmd.Flags().Int("ip-version", 6, "IP version of the database (4, 6)")
	_ = cmd.MarkFlagRequired("ranges")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
