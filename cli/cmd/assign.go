package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"techmatch/cli/style"
)

var assignCmd = &cobra.Command{
	Use:   "assign <job> <technician>",
	Short: "Assign a technician, completing dispatch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := client.Assign(args[0], args[1])
		if err != nil {
			return fmt.Errorf("assign failed: %w", err)
		}
		fmt.Println(style.SuccessBox.Render(fmt.Sprintf("✓ %s assigned to %s", shortID(job.ID), job.TechnicianID)))
		fmt.Println(renderJobCard(job))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assignCmd)
}
