package github

// GitHubReleaseApiResponse models the GitHub API /repos/:owner/:repo/releases/{latest,tags/:tag} response
// (only the fields we care about)
type GitHubReleaseApiResponse struct {
	Id         int                  `json:"id"`
	Url        string               `json:"url"`
	TagName    string               `json:"tag_name"`
	Name       string               `json:"name"`
	Draft      bool                 `json:"draft"`
	Prerelease bool                 `json:"prerelease"`
	Assets     []GitHubReleaseAsset `json:"assets"`
}

// GitHubReleaseAsset models asset info in release response
type GitHubReleaseAsset struct {
	Id                 int    `json:"id"`
	Url                string `json:"url"`
	Name               string `json:"name"`
	BrowserDownloadUrl string `json:"browser_download_url"`
	Size               int64  `json:"size"`
	Digest             string `json:"digest"`
}
