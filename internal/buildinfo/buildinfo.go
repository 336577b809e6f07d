// buildinfo.go captures build metadata (version, commit, date) for use in version output.
package buildinfo

// These are injected at build time via -ldflags and default to dev values.
var (
	Version   = "dev"
	GitCommit = ""
	BuildDate = ""
)
