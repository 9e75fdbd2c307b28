// Package version holds the build version, overridable via ldflags.
package version

// Version is the cci release version.
var Version = "0.4.0"
