package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "querygate",
		Short: "HTTP gateway that stops repeating queries that keep failing",
		Long: `querygate sits in front of an API and tracks consecutive failures per
logical query. After three failures in a row a query is answered locally with
503 for thirty seconds instead of reaching the upstream again.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVersionCmd())

	return root
}
