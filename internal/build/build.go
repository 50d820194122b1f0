// Package build holds application identity and version information.
package build

var (
	// AppName is the display name of the application.
	AppName = "Angora"

	// Slug is the machine-friendly name used for config paths, env
	// prefixes and the default exchange name.
	Slug = "angora"

	// Version is set at build time via ldflags.
	Version = "0.0.0"
)
