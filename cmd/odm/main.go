package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "odm",
		Short: "compile dotted queries and updates and run them against a document store",
	}
	root.PersistentFlags().Bool("yaml", false, "print output as yaml")
	root.AddCommand(initCmd(), queryCmd(), updateCmd(), findCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
