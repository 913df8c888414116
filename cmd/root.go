package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "course-payments",
	Short: "Course payments microservice",
	Long:  "A course payments microservice that initializes hosted checkouts, verifies payments and keeps the enrollment ledger.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
