package cmd

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/behide-game/Behide/internal/config"
	"github.com/behide-game/Behide/internal/hub"
	"github.com/behide-game/Behide/internal/logging"
	"github.com/behide-game/Behide/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling service",
	Long: `Run the signaling hub that creates rooms and relays offers between players.

Room codes are reserved in memory unless --redis is set, in which case they
are shared by every hub instance using the same Redis.

Examples:
  behide serve
  behide serve --listen :9000 --max-peers 4
  behide serve --redis localhost:6379`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func serve(cmd *cobra.Command) error {
	ctx := cmd.Context()
	logger := slog.Default()

	opts := []hub.Option{
		hub.WithLogger(logger),
		hub.WithMaxPeers(cfg.MaxPeers),
		hub.WithJoinTimeout(cfg.JoinTimeout),
	}
	if cfg.RedisAddr != "" {
		rdb, err := hub.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer rdb.Close()
		codes := hub.NewRedisCodeStore(rdb, cfg.RoomTTL)
		opts = append(opts, hub.WithCodeStore(codes), hub.WithCodeRefresh(codes.RefreshInterval()))
		logger.Info("room codes stored in redis", "addr", cfg.RedisAddr)
	}

	if logging.ParseLevel(cfg.LogLevel) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	h := hub.NewHub(opts...)
	go h.Run(ctx)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	logger.Info("signaling service listening", "addr", ln.Addr().String())

	router := server.NewRouter(h, server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	return server.Serve(ctx, ln, router, logger)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.StringP("listen", "l", config.DefaultListen, "Listen address")
	flags.Int("max-peers", config.DefaultMaxPeers, "Maximum peers per room")
	flags.String("redis", "", "Redis address for room codes")
	flags.String("redis-password", "", "Redis password")
	flags.Duration("room-ttl", config.DefaultRoomTTL, "Room code lifetime in Redis, refreshed while the room is alive")
	flags.Duration("join-timeout", config.DefaultJoinTimeout, "How long a join waits for members' offers")
	flags.StringSlice("allowed-origins", nil, "Browser origins allowed to connect")

	bindFlags(flags, map[string]string{
		config.KeyListen:         "listen",
		config.KeyMaxPeers:       "max-peers",
		config.KeyRedisAddr:      "redis",
		config.KeyRedisPassword:  "redis-password",
		config.KeyRoomTTL:        "room-ttl",
		config.KeyJoinTimeout:    "join-timeout",
		config.KeyAllowedOrigins: "allowed-origins",
	})
}
