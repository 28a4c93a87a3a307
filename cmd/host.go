package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/behide-game/Behide/internal/ui"
)

var hostCmd = &cobra.Command{
	Use:     "host",
	Aliases: []string{"h"},
	Short:   "Create a room and wait for players",
	Long: `Create a room on the signaling service and accept players into the mesh.

Examples:
  behide host
  behide host --domain custom.example.com
  behide host --relay --turn turn.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hostGame(cmd)
	},
}

func hostGame(cmd *cobra.Command) error {
	ctx := cmd.Context()

	session, err := newGameSession(ctx, cfg, "host")
	if err != nil {
		return err
	}
	defer session.Close()

	stopSpinner := ui.RunSpinner(fmt.Sprintf("Creating room as %s...", cfg.Name))
	id, err := session.manager.StartHost(ctx)
	stopSpinner()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(ui.NewRoomInfo(id.String(), cfg.RoomLink(id.String())).View())
	fmt.Println()

	return session.finish(session.runLobby(ctx))
}

func init() {
	rootCmd.AddCommand(hostCmd)
}
