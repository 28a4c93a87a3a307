package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/behide-game/Behide/internal/config"
	"github.com/behide-game/Behide/internal/logging"
	"github.com/behide-game/Behide/internal/ui"
	"github.com/behide-game/Behide/internal/version"
)

var (
	v       = config.New()
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "behide",
	Short: "Peer-to-peer game sessions over WebRTC",
	Long: `Behide connects game clients into a full mesh of WebRTC data channels.

A host creates a room and shares its code. Every client that joins with the
code is connected directly to the host and to every other player.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		logging.Init(cfg.LogLevel)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

// bindFlags binds each config key to the named flag so flags override env and file.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, toml or json)")
	flags.StringP("domain", "d", "", "Signaling service domain")
	flags.String("signaling-url", "", "Signaling websocket URL, overrides --domain")
	flags.StringP("stun", "s", "", "Custom STUN server")
	flags.StringP("turn", "t", "", "Custom TURN server")
	flags.StringP("turn-user", "u", "", "TURN username")
	flags.StringP("turn-pass", "p", "", "TURN password")
	flags.BoolP("relay", "r", false, "Force relay mode")
	flags.Bool("loopback", false, "Gather loopback ICE candidates")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.StringP("name", "n", "", "Player name shown to the room (defaults to the login name)")

	bindFlags(flags, map[string]string{
		config.KeyDomain:       "domain",
		config.KeySignalingURL: "signaling-url",
		config.KeySTUN:         "stun",
		config.KeyTURN:         "turn",
		config.KeyTURNUser:     "turn-user",
		config.KeyTURNPass:     "turn-pass",
		config.KeyRelay:        "relay",
		config.KeyLoopback:     "loopback",
		config.KeyLogLevel:     "log-level",
		config.KeyName:         "name",
	})
}
