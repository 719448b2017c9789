package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/wifisim/datarecording"
	"github.com/sarchlab/wifisim/scenario"
)

type reportFlags struct {
	db  string
	run string
}

var reportOpts reportFlags

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the flows recorded by run --db",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return report(cmd.Context(), cmd.OutOrStdout(), reportOpts)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOpts.db, "db", "",
		"SQLite file written by run --db")
	reportCmd.Flags().StringVar(&reportOpts.run, "run", "",
		"Only print the flows of this run")
}

func report(ctx context.Context, out io.Writer, f reportFlags) error {
	if f.db == "" {
		return errors.New("--db is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := datarecording.NewReader(f.db)
	if err != nil {
		return err
	}
	defer reader.Close()

	rows, err := scenario.ReadFlows(ctx, reader, f.run)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Run\tFlow\tSource\tDestination\tTx\tRx\tLost\t"+
		"Throughput(Mbps)\tLoss(%)\tDelay(s)\tJitter(s)\tHops")

	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%s:%d\t%s:%d\t%d\t%d\t%d\t%.6f\t%s\t%s\t%s\t%s\n",
			r.Run, r.Flow, r.Source, r.SrcPort, r.Destination, r.DstPort,
			r.TxPackets, r.RxPackets, r.LostPackets, r.Throughput,
			r.LossPercent, r.MeanDelay, r.MeanJitter, r.MeanHopCount)
	}

	return tw.Flush()
}
