package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/JoshuaOlubori/truemeds-v2/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print dashboard statistics to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		collected, err := stats.New(st).Collect(cmd.Context())
		if err != nil {
			return err
		}

		p := message.NewPrinter(language.English)
		p.Printf("Scans\n")
		p.Printf("  total:           %d\n", collected.Scans.Total)
		p.Printf("  last 24 hours:   %d\n", collected.Scans.Last24Hours)
		p.Printf("  last 7 days:     %d\n", collected.Scans.Last7Days)
		p.Printf("  last 30 days:    %d\n", collected.Scans.Last30Days)
		p.Printf("  fake detections: %d (%.1f%%)\n", collected.Scans.FakeDetections, collected.Scans.FakeDetectionRate)
		p.Printf("Training images\n")
		p.Printf("  total:      %d\n", collected.Training.Total)
		p.Printf("  original:   %d\n", collected.Training.Original)
		p.Printf("  fake:       %d\n", collected.Training.Fake)
		p.Printf("  pending:    %d\n", collected.Training.Pending)
		p.Printf("  processing: %d\n", collected.Training.Processing)
		p.Printf("  trained:    %d\n", collected.Training.Trained)
		p.Printf("Monthly trend\n")
		for _, m := range collected.Trends.Monthly {
			p.Printf("  %-4s %d\n", m.Month, m.Count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
