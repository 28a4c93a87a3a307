// Package webrtc implements peer.Link on top of pion WebRTC data channels.
package webrtc

import (
	"fmt"
	"log/slog"

	pion "github.com/pion/webrtc/v4"

	"github.com/behide-game/Behide/internal/config"
)

// Options is the ICE and network setup shared by every link of a session.
type Options struct {
	STUNServers []string
	TURNServers []string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to relay candidates when TURN is configured.
	ForceRelay bool

	// Loopback gathers 127.0.0.1 candidates so peers on one machine can connect
	// without a usable network interface.
	Loopback bool

	UDPPortMin uint16
	UDPPortMax uint16

	// Logger receives pion's internal logs. Nil keeps pion's default logger.
	Logger *slog.Logger
}

// OptionsFromConfig maps the application config to link options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		STUNServers: cfg.STUNServers(),
		TURNServers: cfg.TURNServers(),
		TURNUser:    cfg.TURNUser,
		TURNPass:    cfg.TURNPass,
		ForceRelay:  cfg.ForceRelay,
		Loopback:    cfg.Loopback,
		UDPPortMin:  cfg.UDPPortMin,
		UDPPortMax:  cfg.UDPPortMax,
	}
}

// NewAPI builds a pion API with the SettingEngine derived from opts.
func NewAPI(opts Options) (*pion.API, error) {
	se := pion.SettingEngine{}

	if opts.UDPPortMin != 0 {
		if err := se.SetEphemeralUDPPortRange(opts.UDPPortMin, opts.UDPPortMax); err != nil {
			return nil, fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}
	if opts.Loopback {
		se.SetIncludeLoopbackCandidate(true)
	}
	if opts.Logger != nil {
		se.LoggerFactory = loggerFactory{logger: opts.Logger}
	}

	return pion.NewAPI(pion.WithSettingEngine(se)), nil
}

// configuration returns the ICE configuration for a new peer connection.
func (o Options) configuration() pion.Configuration {
	var iceServers []pion.ICEServer
	if len(o.STUNServers) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: o.STUNServers})
	}

	if o.TURNServers != nil {
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       o.TURNServers,
			Username:   o.TURNUser,
			Credential: o.TURNPass,
		})
	}

	policy := pion.ICETransportPolicyAll
	if o.TURNServers != nil && (o.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}
