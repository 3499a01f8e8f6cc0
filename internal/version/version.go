package version

// Version is the current version of huddle.
// Override at build time with:
//
//	go build -ldflags="-X 'github.com/BioHazard786/huddle/internal/version.Version=v1.0.0'"
var Version = "dev"
