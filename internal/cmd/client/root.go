package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the relay client.
// It registers the chat command group.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "relay",
		Short: "Relay client commands",
	}
	root.AddCommand(NewChatCommand(baseURL))
	return root
}
