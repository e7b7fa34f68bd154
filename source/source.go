package source

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// SourceType identifies the release host flavour
type SourceType string

const (
	TypeGitHub SourceType = "github"
	TypeAuto   SourceType = "auto"
)

// LatestSelector is the release selector that asks the host for its newest published release.
const LatestSelector = "latest"

// Repo identifies a repository on a release host
type Repo struct {
	Url     string     // Full repo URL as given by the operator
	BaseUrl string     // Host (github.com or an enterprise host)
	ApiUrl  string     // API base URL including scheme, without trailing slash
	Owner   string     // Account name under which the repo exists
	Name    string     // Repository name
	Token   string     // Optional API token, passed through as-is
	Type    SourceType // Provider type
}

// ReleaseAsset is one downloadable file of a release
type ReleaseAsset struct {
	Id     int    // Asset ID
	Name   string // File name, unique within a release
	Url    string // Direct download URL (browser_download_url)
	Size   int64  // Size in bytes as reported by the host, 0 if unknown
	Digest string // Optional "sha256:<hex>" digest published by the host
}

// Release is a tagged publication of build artifacts
type Release struct {
	Id         int
	Tag        string
	Name       string
	Url        string
	Draft      bool
	Prerelease bool
	Assets     []ReleaseAsset
}

// Config holds source-specific configuration
type Config struct {
	ApiVersion string        // v3 for GitHub Enterprise
	ApiUrl     string        // If set, overrides the API base URL derived from the repo URL
	HttpClient *http.Client  // If nil, http.DefaultClient is used
	Logger     *logrus.Entry // Logger instance
}

// Source defines the operations the deployer needs from a release host
type Source interface {
	// ParseUrl parses a repo URL into a Repo struct
	ParseUrl(repoUrl, token string) (Repo, error)

	// ResolveRelease looks up the release for "latest" or an explicit tag
	ResolveRelease(repo Repo, selector string) (Release, error)

	// ListReleases returns every release of the repository, newest first as the host orders them
	ListReleases(repo Repo) ([]Release, error)

	// DownloadReleaseAsset downloads a release asset to destPath
	DownloadReleaseAsset(repo Repo, asset ReleaseAsset, destPath string, withProgress bool) error
}
