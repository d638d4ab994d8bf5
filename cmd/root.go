// Package cmd implements the atlaschat command tree.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "atlaschat",
	Short: "Chat backend for Atlassian Jira and Confluence",
	Long: `atlaschat is a conversational backend for Jira and Confluence. It keeps a
persistent connection to the Atlassian MCP server, routes each request to a
fast, smart or complex model, and streams tool calls and the final answer
back as NDJSON.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
