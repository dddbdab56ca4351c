// Package cmd wires configuration, logging, transport, store, and the
// stream controller into the parley CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley - streaming chat client for your AI backend",
	Long: `Parley is a terminal client for a conversational AI backend.
It maintains a persistent WebSocket connection, reconstructs streamed
responses in real time, and survives disconnects, retries, and
cancellations without losing conversation state.

Running parley with no arguments opens the chat interface.`,
	RunE: runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
