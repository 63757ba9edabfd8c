// Package buildinfo exposes build information about the binary set by govvv at build time.
package buildinfo

var (
	// GitCommit is the commit hash.
	GitCommit = "n/a"
	// GitBranch is the branch name.
	GitBranch = "n/a"
	// GitState indicates if the working tree was clean or dirty.
	GitState = "n/a"
	// GitSummary is the output of `git describe --tags --dirty --always`.
	GitSummary = "n/a"
	// BuildDate is the build timestamp.
	BuildDate = "n/a"
	// Version is the binary version.
	Version = "n/a"
)

// Summary bundles the build information of the running binary.
type Summary struct {
	GitCommit  string
	GitBranch  string
	GitState   string
	GitSummary string
	BuildDate  string
	Version    string
}

// GetSummary returns the build information of the running binary.
func GetSummary() Summary {
	return Summary{
		GitCommit:  GitCommit,
		GitBranch:  GitBranch,
		GitState:   GitState,
		GitSummary: GitSummary,
		BuildDate:  BuildDate,
		Version:    Version,
	}
}

// GetGitCommit returns the GitCommit.
func (s Summary) GetGitCommit() string { return s.GitCommit }

// GetGitBranch returns the GitBranch.
func (s Summary) GetGitBranch() string { return s.GitBranch }

// GetGitState returns the GitState.
func (s Summary) GetGitState() string { return s.GitState }

// GetGitSummary returns the GitSummary.
func (s Summary) GetGitSummary() string { return s.GitSummary }

// GetBuildDate returns the build date.
func (s Summary) GetBuildDate() string { return s.BuildDate }

// GetBinaryVersion returns the binary version.
func (s Summary) GetBinaryVersion() string { return s.Version }
