package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiFlag  string
	userFlag string
	convFlag string
	rootCmd  = &cobra.Command{
		Use:   "chatctl",
		Short: "CLI client for the chat service REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Chat service base URL")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User ID")
	rootCmd.PersistentFlags().StringVarP(&convFlag, "conversation", "c", "", "Conversation ID")

	textCmd := &cobra.Command{
		Use:   "text MESSAGE",
		Short: "Send a text turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runText(apiFlag, userFlag, convFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(textCmd)

	contextCmd := &cobra.Command{
		Use:   "context SESSION_ID",
		Short: "Show the conversation window for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetInt("window")
			return runContext(apiFlag, args[0], window, os.Stdout)
		},
	}
	contextCmd.Flags().IntP("window", "w", 0, "Window size (0 uses the server default)")
	rootCmd.AddCommand(contextCmd)

	clearCmd := &cobra.Command{
		Use:   "clear SESSION_ID",
		Short: "Deactivate the active conversation for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(apiFlag, args[0], os.Stdout)
		},
	}
	rootCmd.AddCommand(clearCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
