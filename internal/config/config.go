package config

import (
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain             = "signal.behide.dev"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultNegotiationTimeout = 30 * time.Second
	DefaultListen             = ":8080"
	DefaultMaxPeers           = 8
	DefaultRoomTTL            = 12 * time.Hour
	DefaultJoinTimeout        = 20 * time.Second
	DefaultName               = "player"

	// MaxNameLength bounds the player name, in characters.
	MaxNameLength = 32

	// EnvPrefix prefixes every environment variable, e.g. BEHIDE_DOMAIN.
	EnvPrefix = "BEHIDE"
)

// Config keys, shared by flags, env and config files.
const (
	KeyDomain             = "domain"
	KeySignalingURL       = "signaling_url"
	KeySTUN               = "stun"
	KeyTURN               = "turn"
	KeyTURNUser           = "turn_user"
	KeyTURNPass           = "turn_pass"
	KeyRelay              = "relay"
	KeyLoopback           = "loopback"
	KeyUDPPortMin         = "udp_port_min"
	KeyUDPPortMax         = "udp_port_max"
	KeyNegotiationTimeout = "negotiation_timeout"
	KeyLogLevel           = "log_level"
	KeyName               = "name"
	KeyListen             = "listen"
	KeyMaxPeers           = "max_peers"
	KeyRedisAddr          = "redis_addr"
	KeyRedisPassword      = "redis_password"
	KeyRoomTTL            = "room_ttl"
	KeyJoinTimeout        = "join_timeout"
	KeyAllowedOrigins     = "allowed_origins"
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling service domain
	Domain string

	// SignalingURL overrides the websocket URL derived from Domain
	SignalingURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	ForceRelay bool
	Loopback   bool
	UDPPortMin uint16
	UDPPortMax uint16

	// NegotiationTimeout bounds a single peer connection handshake.
	NegotiationTimeout time.Duration

	LogLevel string

	// Name is shown to the other players of a room.
	Name string

	// Hub settings
	Listen        string
	MaxPeers      int
	RedisAddr     string
	RedisPassword string
	RoomTTL       time.Duration
	// JoinTimeout fails joins whose members do not all report an offer in time.
	JoinTimeout time.Duration
	// AllowedOrigins restricts browser origins. Empty accepts all.
	AllowedOrigins []string
}

// New returns a viper instance with defaults set and the environment bound.
// Flags are bound by the caller with BindPFlag before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyDomain, DefaultDomain)
	v.SetDefault(KeySignalingURL, "")
	v.SetDefault(KeySTUN, DefaultSTUN)
	v.SetDefault(KeyTURN, "")
	v.SetDefault(KeyTURNUser, "")
	v.SetDefault(KeyTURNPass, "")
	v.SetDefault(KeyRelay, false)
	v.SetDefault(KeyLoopback, false)
	v.SetDefault(KeyUDPPortMin, 0)
	v.SetDefault(KeyUDPPortMax, 0)
	v.SetDefault(KeyNegotiationTimeout, DefaultNegotiationTimeout)
	v.SetDefault(KeyLogLevel, "")
	v.SetDefault(KeyName, defaultName())
	v.SetDefault(KeyListen, DefaultListen)
	v.SetDefault(KeyMaxPeers, DefaultMaxPeers)
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRoomTTL, DefaultRoomTTL)
	v.SetDefault(KeyJoinTimeout, DefaultJoinTimeout)
	v.SetDefault(KeyAllowedOrigins, []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration with the following priority:
// 1. CLI flags bound to v - highest priority
// 2. Environment variables (BEHIDE_*)
// 3. The config file, when configFile is not empty
// 4. Defaults - lowest priority
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		Domain:             v.GetString(KeyDomain),
		SignalingURL:       v.GetString(KeySignalingURL),
		STUNServer:         v.GetString(KeySTUN),
		TURNServer:         v.GetString(KeyTURN),
		TURNUser:           v.GetString(KeyTURNUser),
		TURNPass:           v.GetString(KeyTURNPass),
		ForceRelay:         v.GetBool(KeyRelay),
		Loopback:           v.GetBool(KeyLoopback),
		UDPPortMin:         v.GetUint16(KeyUDPPortMin),
		UDPPortMax:         v.GetUint16(KeyUDPPortMax),
		NegotiationTimeout: v.GetDuration(KeyNegotiationTimeout),
		LogLevel:           v.GetString(KeyLogLevel),
		Name:               strings.TrimSpace(v.GetString(KeyName)),
		Listen:             v.GetString(KeyListen),
		MaxPeers:           v.GetInt(KeyMaxPeers),
		RedisAddr:          v.GetString(KeyRedisAddr),
		RedisPassword:      v.GetString(KeyRedisPassword),
		RoomTTL:            v.GetDuration(KeyRoomTTL),
		JoinTimeout:        v.GetDuration(KeyJoinTimeout),
		AllowedOrigins:     v.GetStringSlice(KeyAllowedOrigins),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Domain == "" && c.SignalingURL == "" {
		return errors.New("config: domain or signaling_url must be set")
	}
	if c.NegotiationTimeout <= 0 {
		return fmt.Errorf("config: negotiation_timeout must be positive, got %s", c.NegotiationTimeout)
	}
	if c.MaxPeers < 2 {
		return fmt.Errorf("config: max_peers must be at least 2, got %d", c.MaxPeers)
	}
	if c.Name == "" || utf8.RuneCountInString(c.Name) > MaxNameLength {
		return fmt.Errorf("config: name must be 1 to %d characters, got %q", MaxNameLength, c.Name)
	}
	if (c.UDPPortMin == 0) != (c.UDPPortMax == 0) || c.UDPPortMin > c.UDPPortMax {
		return fmt.Errorf("config: invalid udp port range %d-%d", c.UDPPortMin, c.UDPPortMax)
	}
	return nil
}

// defaultName is the login name of the current user, or DefaultName.
func defaultName() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return DefaultName
	}
	name := u.Username
	// Windows usernames carry the domain.
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return DefaultName
	}
	return name
}

// WebSocketURL returns the signaling endpoint.
func (c *Config) WebSocketURL() string {
	if c.SignalingURL != "" {
		return c.SignalingURL
	}
	return fmt.Sprintf("wss://%s/ws", c.Domain)
}

// RoomLink returns the shareable join link for a room code.
func (c *Config) RoomLink(code string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, code)
}

// STUNServers returns STUN server URLs as strings
func (c *Config) STUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// TURNServers returns TURN server URLs if configured
func (c *Config) TURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}
