package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = TPUSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// TPUSemVer is the current version of the TPU node.
	// It's the Semantic Version of the software.
	// Must be a string because scripts like dist.sh read this file.
	TPUSemVer = "0.1.0"
)
