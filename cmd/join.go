package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/behide-game/Behide/internal/room"
	"github.com/behide-game/Behide/internal/ui"
)

var joinCmd = &cobra.Command{
	Use:     "join <room-code|url>",
	Aliases: []string{"j"},
	Short:   "Join a room and connect to every player",
	Long: `Join an existing room and connect directly to the host and every other player.

Examples:
  behide join ABC123
  behide join https://signal.behide.dev/r/ABC123
  behide join abc123 --relay`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, ok := room.Parse(room.Normalize(args[0]))
		if !ok {
			return fmt.Errorf("invalid room code %q", args[0])
		}
		return joinGame(cmd, id)
	},
}

func joinGame(cmd *cobra.Command, id room.ID) error {
	ctx := cmd.Context()

	session, err := newGameSession(ctx, cfg, "client")
	if err != nil {
		return err
	}
	defer session.Close()

	sp := ui.NewWaitingSpinner(fmt.Sprintf("Joining room %s...", id))
	sp.Start()
	if err := session.manager.StartClient(ctx, id); err != nil {
		sp.Error(fmt.Sprintf("Could not join room %s", id))
		return err
	}
	sp.Success(fmt.Sprintf("Joined room %s as peer %d", id, session.manager.Self()))
	fmt.Println()

	return session.finish(session.runLobby(ctx))
}

func init() {
	rootCmd.AddCommand(joinCmd)
}
