package main

import (
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Run the sync daemon with the WebSocket status feed",
	Long: `Run the auto-sync daemon and serve its status over WebSocket, so a UI
can show the connection indicator, toasts and sync progress.

Server to client messages:
  status          connection indicator (online, offline, syncing)
  toast           user notification with severity
  sync_start      a cycle began
  sync_success    a cycle committed; carries last_sync_time
  sync_error      a cycle failed; carries the error kind and message
  sync_complete   a cycle ended either way
  state_changed   slots replaced; reload asks for a full refresh

Client to server messages:
  {"type":"online"}   the client regained connectivity
  {"type":"sync"}     manual sync button

Connect with a WebSocket client:
  ws://127.0.0.1:8765/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Dashboard.Addr = addr
		}
		return runDaemon(cmd.Context(), true)
	},
}

func init() {
	dashboardCmd.Flags().String("addr", "", "listen address (default from dashboard.addr)")
	rootCmd.AddCommand(dashboardCmd)
}
