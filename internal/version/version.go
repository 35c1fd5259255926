// Package version provides version information for meeting-optimizer.
package version

// Version is the current version of meeting-optimizer.
// It can be overridden at build time with:
//
//	go build -ldflags "-X github.com/boblangley/meeting-optimizer/internal/version.Version=x.y.z"
var Version = "0.1.0"

// Name is the application name.
const Name = "meeting-optimizer"
