package version

// Set via -ldflags "-X github.com/you/poe-chatwatch/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
