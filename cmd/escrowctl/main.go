// escrowctl is the operator tool for the payments database: schema
// migrations, the payout outbox and unreconciled webhook notifications.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "escrowctl",
		Short:   "escrowctl - operator tool for PetCare payments",
		Version: Version,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(payoutsCmd())
	rootCmd.AddCommand(webhooksCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
