package version

// Version is the current version of the Behide client and hub.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/behide-game/Behide/internal/version.Version=v1.0.0'"
var Version = "dev"
