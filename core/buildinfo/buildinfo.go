package buildinfo

// Set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/scenariobot/core/buildinfo.Version=v0.3.0'
//	-X 'github.com/m3rciful/scenariobot/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/scenariobot/core/buildinfo.Date=2026-10-01T12:00:00Z'
var (
	// Version reports the release tag of the build.
	Version = "dev"
	// Commit reports the source commit of the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// Short renders version and commit for banners and the version command.
func Short() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
