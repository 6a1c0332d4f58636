package version

// Version is the current version of the Huddle CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/zakirhyder/huddle/internal/version.Version=v1.0.0'"
// GoReleaser will automatically set this during release builds.
var Version = "dev"
