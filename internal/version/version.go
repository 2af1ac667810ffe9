package version

// Set via -ldflags at build time.
var (
	AppName    = "Troupe"
	AppVersion = "dev"
	BuildDate  = "unknown"
)
