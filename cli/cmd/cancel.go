package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"techmatch/cli/style"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job>",
	Short: "Cancel a job and stop tracking its SLA",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := client.Cancel(args[0])
		if err != nil {
			return fmt.Errorf("cancel failed: %w", err)
		}
		fmt.Println(style.SuccessBox.Render(fmt.Sprintf("✓ %s cancelled", shortID(job.ID))))
		fmt.Println(renderJobCard(job))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}
