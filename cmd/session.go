package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/behide-game/Behide/internal/config"
	"github.com/behide-game/Behide/internal/mesh"
	"github.com/behide-game/Behide/internal/peer"
	"github.com/behide-game/Behide/internal/signaling"
	"github.com/behide-game/Behide/internal/transport"
	"github.com/behide-game/Behide/internal/ui"
	"github.com/behide-game/Behide/internal/webrtc"
)

const (
	connectTimeout  = 15 * time.Second
	lobbyRefresh    = time.Second
	heartbeatPeriod = 2 * time.Second
)

// gameSession wires the signaling client, the link factory and the transport
// into one mesh manager.
type gameSession struct {
	logger    *slog.Logger
	client    *signaling.Client
	transport *transport.Mesh
	manager   *mesh.Manager
	name      string
	role      string
	started   time.Time

	// signalingLost is set once the signaling connection drops mid-session.
	signalingLost bool
}

func newGameSession(ctx context.Context, cfg *config.Config, role string) (*gameSession, error) {
	if cfg.ForceRelay && cfg.TURNServers() == nil {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}

	logger := slog.Default()
	opts := webrtc.OptionsFromConfig(cfg)
	opts.Logger = logger
	api, err := webrtc.NewAPI(opts)
	if err != nil {
		return nil, fmt.Errorf("create webrtc api: %w", err)
	}

	sp := ui.NewConnectionSpinner("Connecting to server...")
	sp.Start()
	client := signaling.NewClient(cfg.WebSocketURL(), logger)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		sp.Error("Could not reach the signaling server")
		return nil, err
	}
	sp.Success("Connected to " + cfg.WebSocketURL())

	tr := transport.New(
		transport.WithLogger(logger),
		transport.WithHeartbeat(heartbeatPeriod),
		transport.WithName(cfg.Name),
	)
	newLink := func() (peer.Link, error) {
		link, err := webrtc.NewLink(api, opts, logger)
		if err != nil {
			return nil, err
		}
		return link, nil
	}
	manager := mesh.NewManager(client, newLink, tr,
		mesh.WithLogger(logger),
		mesh.WithNegotiationTimeout(cfg.NegotiationTimeout),
	)

	return &gameSession{
		logger:    logger,
		client:    client,
		transport: tr,
		manager:   manager,
		name:      cfg.Name,
		role:      role,
	}, nil
}

func (s *gameSession) Close() {
	s.manager.Close()
	s.client.Close()
}

func (s *gameSession) rows() []ui.PeerRow {
	snap := s.manager.Snapshot()
	rows := make([]ui.PeerRow, 0, len(snap))
	for _, p := range snap {
		row := ui.PeerRow{
			ID:     uint32(p.ID),
			Self:   p.Self,
			Host:   p.ID == signaling.HostPeerID,
			Status: "pending",
		}
		if p.Established {
			row.Status = "connected"
		}
		if p.Self {
			row.Name = s.name
		} else {
			if rtt, err := s.transport.RTT(p.ID); err == nil {
				row.RTT = rtt
			}
			if name, err := s.transport.Name(p.ID); err == nil {
				row.Name = name
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// runLobby shows the live peer table until the user quits or ctx ends.
func (s *gameSession) runLobby(ctx context.Context) error {
	s.started = time.Now()
	lobby := ui.NewLobbyUI(s.manager.Room().String(), s.role)
	lobby.Start()
	defer lobby.Stop()

	lobby.Update(s.rows(), "")

	ticker := time.NewTicker(lobbyRefresh)
	defer ticker.Stop()

	events := s.manager.Events()
	messages := s.transport.Messages()
	signalingDone := s.client.Done()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lobby.Done():
			return nil
		case <-signalingDone:
			// Established links keep working; only new joins are lost.
			signalingDone = nil
			s.signalingLost = true
			s.logger.Warn("signaling connection lost", "room", s.manager.Room().String())
			lobby.Update(nil, "signaling connection lost, no new players can join")
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			lobby.Update(s.rows(), eventNote(ev))
		case p := <-messages:
			switch p.Type {
			case transport.TypeHello:
				var hello transport.HelloPayload
				if err := p.Decode(&hello); err == nil {
					who := fmt.Sprintf("peer %d", p.From)
					if hello.Name != "" {
						who = fmt.Sprintf("%s (%s)", hello.Name, who)
					}
					lobby.Update(s.rows(), fmt.Sprintf("%s says hello, v%s", who, hello.Version))
				}
			case transport.TypePeerLeft:
				lobby.Update(s.rows(), fmt.Sprintf("peer %d left", p.From))
			}
		case <-ticker.C:
			lobby.Update(s.rows(), "")
		}
	}
}

func eventNote(ev mesh.Event) string {
	if ev.Err != nil {
		return fmt.Sprintf("peer %d %s: %v", ev.Peer, ev.Kind, ev.Err)
	}
	return fmt.Sprintf("peer %d %s", ev.Peer, ev.Kind)
}

// finish closes the session and prints what happened in it.
func (s *gameSession) finish(lobbyErr error) error {
	summary := s.summary()
	s.Close()

	fmt.Println()
	ui.RenderSessionSummary(summary)
	if s.signalingLost {
		ui.PrintWarning("The signaling connection was lost during the session, late players could not join")
	}
	ui.PrintInfo("Left room " + summary.Room)
	return lobbyErr
}

func (s *gameSession) summary() ui.SessionSummary {
	return ui.SessionSummary{
		Room:     s.manager.Room().String(),
		Self:     uint32(s.manager.Self()),
		Role:     s.role,
		Peers:    s.rows(),
		Duration: time.Since(s.started),
	}
}
