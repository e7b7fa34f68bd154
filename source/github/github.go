package github

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brawer/osmviews-deploy/source"
)

// GitHubSource implements source.Source for GitHub and GitHub Enterprise
type GitHubSource struct {
	config source.Config
	logger *logrus.Entry
}

// NewGitHubSource creates a new GitHub source
func NewGitHubSource(config source.Config) source.Source {
	return &GitHubSource{
		config: config,
		logger: config.Logger,
	}
}

// ParseUrl parses a GitHub repo URL into a Repo struct
func (s *GitHubSource) ParseUrl(repoUrl, token string) (source.Repo, error) {
	var repo source.Repo

	u, err := url.Parse(repoUrl)
	if err != nil || u.Host == "" {
		return repo, fmt.Errorf("GitHub repo URL %s is malformed", repoUrl)
	}

	baseUrl := u.Host
	apiUrl := "https://api.github.com"
	apiVersion := s.config.ApiVersion
	if apiVersion == "" {
		apiVersion = "v3"
	}

	if baseUrl != "github.com" && baseUrl != "www.github.com" {
		if s.logger != nil {
			s.logger.Infof("Assuming GitHub Enterprise for URL: %s", repoUrl)
		}
		apiUrl = "https://" + baseUrl + "/api/" + apiVersion
	}

	if s.config.ApiUrl != "" {
		apiUrl = strings.TrimSuffix(s.config.ApiUrl, "/")
	}

	regex, err := regexp.Compile(`^https?://(?:www\.)?` + regexp.QuoteMeta(strings.TrimPrefix(baseUrl, "www.")) + `/(.+?)/(.+?)(?:$|\?|#|/)`)
	if err != nil {
		return repo, fmt.Errorf("GitHub repo URL %s is malformed", repoUrl)
	}

	matches := regex.FindStringSubmatch(repoUrl)
	if len(matches) != 3 {
		return repo, fmt.Errorf("GitHub repo URL %s could not be parsed", repoUrl)
	}

	repo = source.Repo{
		Url:     repoUrl,
		BaseUrl: baseUrl,
		ApiUrl:  apiUrl,
		Owner:   matches[1],
		Name:    strings.TrimSuffix(matches[2], ".git"),
		Token:   token,
		Type:    source.TypeGitHub,
	}

	return repo, nil
}

// ResolveRelease fetches releases/latest for the latest selector and releases/tags/<selector> otherwise.
// The selector is passed through as a single escaped path segment.
func (s *GitHubSource) ResolveRelease(repo source.Repo, selector string) (source.Release, error) {
	var path string
	if selector == "" || selector == source.LatestSelector {
		path = fmt.Sprintf("repos/%s/%s/releases/latest", repo.Owner, repo.Name)
	} else {
		path = fmt.Sprintf("repos/%s/%s/releases/tags/%s", repo.Owner, repo.Name, url.PathEscape(selector))
	}

	resp, err := s.callGitHubApi(repo, path, map[string]string{"Accept": "application/vnd.github+json"})
	if err != nil {
		return source.Release{}, err
	}

	buf := new(bytes.Buffer)
	_, goErr := buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if goErr != nil {
		return source.Release{}, goErr
	}

	var apiRelease GitHubReleaseApiResponse
	if err := json.Unmarshal(buf.Bytes(), &apiRelease); err != nil {
		return source.Release{}, fmt.Errorf("malformed release response from %s: %w", path, err)
	}

	if apiRelease.TagName == "" {
		return source.Release{}, fmt.Errorf("malformed release response from %s: missing tag_name", path)
	}

	return toRelease(apiRelease), nil
}

// ListReleases returns all releases, following the Link header for pagination
func (s *GitHubSource) ListReleases(repo source.Repo) ([]source.Release, error) {
	var releases []source.Release

	// Set per_page to 100 (max) to reduce network calls
	releasesUrl := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=100", repo.ApiUrl, repo.Owner, repo.Name)

	for releasesUrl != "" {
		resp, err := s.callGitHubApiRaw(releasesUrl, "GET", tokenFor(repo, releasesUrl), map[string]string{"Accept": "application/vnd.github+json"})
		if err != nil {
			return releases, err
		}

		buf := new(bytes.Buffer)
		_, goErr := buf.ReadFrom(resp.Body)
		resp.Body.Close()
		if goErr != nil {
			return releases, goErr
		}

		var apiReleases []GitHubReleaseApiResponse
		if err := json.Unmarshal(buf.Bytes(), &apiReleases); err != nil {
			return releases, fmt.Errorf("malformed release list from %s: %w", releasesUrl, err)
		}

		for _, apiRelease := range apiReleases {
			releases = append(releases, toRelease(apiRelease))
		}

		releasesUrl = getNextUrl(resp.Header.Get("link"))
	}

	return releases, nil
}

// DownloadReleaseAsset downloads the asset's browser_download_url to destPath
func (s *GitHubSource) DownloadReleaseAsset(repo source.Repo, asset source.ReleaseAsset, destPath string, withProgress bool) error {
	if asset.Url == "" {
		return fmt.Errorf("asset %s has no download URL", asset.Name)
	}

	resp, err := s.callGitHubApiRaw(asset.Url, "GET", tokenFor(repo, asset.Url), map[string]string{"Accept": "application/octet-stream"})
	if err != nil {
		return err
	}
	return writeResponseToDisk(resp, destPath, withProgress)
}

// tokenFor returns the repo token when rawUrl points at the API host or the repo's own host, and ""
// for any other host, such as a CDN a mirror redirects asset downloads to.
func tokenFor(repo source.Repo, rawUrl string) string {
	if repo.Token == "" {
		return ""
	}

	target, err := url.Parse(rawUrl)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(target.Host), "www.")

	if apiUrl, err := url.Parse(repo.ApiUrl); err == nil && host == strings.TrimPrefix(strings.ToLower(apiUrl.Host), "www.") {
		return repo.Token
	}
	if host == strings.TrimPrefix(strings.ToLower(repo.BaseUrl), "www.") {
		return repo.Token
	}
	return ""
}

func toRelease(apiRelease GitHubReleaseApiResponse) source.Release {
	release := source.Release{
		Id:         apiRelease.Id,
		Tag:        apiRelease.TagName,
		Name:       apiRelease.Name,
		Url:        apiRelease.Url,
		Draft:      apiRelease.Draft,
		Prerelease: apiRelease.Prerelease,
	}

	for _, asset := range apiRelease.Assets {
		release.Assets = append(release.Assets, source.ReleaseAsset{
			Id:     asset.Id,
			Name:   asset.Name,
			Url:    asset.BrowserDownloadUrl,
			Size:   asset.Size,
			Digest: asset.Digest,
		})
	}

	return release
}

func init() {
	// Register the factory function
	source.NewGitHubSource = NewGitHubSource
}
