package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"techmatch/api/timeline"
	"techmatch/cli/style"
)

var eventsCmd = &cobra.Command{
	Use:   "events <job>",
	Short: "Show the SLA timeline of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := client.Events(args[0])
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println(style.DimText.Render("No events."))
			return nil
		}
		f := &timeline.PlainFormatter{Layout: "01-02 15:04:05"}
		fmt.Print(f.Format(events))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
