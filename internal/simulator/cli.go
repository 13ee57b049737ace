package simulator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

const defaultLeads = 100

// Options holds flags for the simulator command.
type Options struct {
	Leads    int
	Expander string
	Format   string
	Sequence int
}

// NewRootCommand creates the rotation-sim command.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "rotation-sim <fixture.yaml>",
		Short: "Simulate lead distribution over a vendor registry",
		Long: `Load a vendor registry from YAML, assign leads through the rotation
engine on an in-memory store and print how they were distributed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			if opts.Leads < 0 || opts.Sequence < 0 {
				return fmt.Errorf("leads and sequence must not be negative")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := LoadFixture(args[0])
			if err != nil {
				return err
			}

			leads := opts.Leads
			if leads == 0 {
				leads = fixture.Leads
			}
			if leads == 0 {
				leads = defaultLeads
			}

			report, err := Run(cmd.Context(), fixture, leads, opts.Expander, opts.Sequence)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return WriteText(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().IntVarP(&opts.Leads, "leads", "n", 0, "number of leads to assign (default: fixture value or 100)")
	cmd.Flags().StringVar(&opts.Expander, "expander", "", "weight semantics (proportional|interval)")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.Flags().IntVar(&opts.Sequence, "sequence", 20, "number of picks to print in order")

	return cmd
}

// WriteText renders a report as an aligned table.
func WriteText(w io.Writer, report Report) error {
	fmt.Fprintf(w, "expander: %s  leads: %d  cycle: %d slots\n\n", report.Expander, report.Leads, report.Cycle)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VENDOR\tWEIGHT\tSLOTS\tASSIGNED\tSHARE")
	for _, v := range report.Vendors {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f%%\n", v.Name, v.Weight, v.Slots, v.Assigned, v.Share*100)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(report.Sequence) > 0 {
		fmt.Fprintf(w, "\nfirst %d picks: %s\n", len(report.Sequence), strings.Join(report.Sequence, ", "))
	}
	return nil
}
