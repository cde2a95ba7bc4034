// Package version exposes the build version.
package version

// Version is set at build time via -ldflags.
var Version = "dev"
