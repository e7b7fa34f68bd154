package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brawer/osmviews-deploy/source"
	"github.com/brawer/osmviews-deploy/source/github"
)

const testRepoUrl = "https://github.com/brawer/osmviews"

type fakeAsset struct {
	name   string
	body   string
	digest string
}

type listedRelease struct {
	tag        string
	draft      bool
	prerelease bool
}

// fakeReleaseApi serves one release in the shape of the GitHub release API, plus its asset downloads
type fakeReleaseApi struct {
	server *httptest.Server

	mu        sync.Mutex
	tag       string
	assets    []fakeAsset
	listed    []listedRelease
	failAsset string // downloads of this asset answer with HTTP 500
	paths     []string
}

func newFakeReleaseApi(t *testing.T, tag string, assets ...fakeAsset) *fakeReleaseApi {
	api := &fakeReleaseApi{tag: tag, assets: assets}
	api.server = httptest.NewServer(http.HandlerFunc(api.serveHTTP))
	t.Cleanup(api.server.Close)
	return api
}

func sha256Digest(body string) string {
	sum := sha256.Sum256([]byte(body))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// publish replaces the release served by the fake API
func (api *fakeReleaseApi) publish(tag string, assets ...fakeAsset) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.tag = tag
	api.assets = assets
}

func (api *fakeReleaseApi) failDownloadOf(name string) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.failAsset = name
}

func (api *fakeReleaseApi) requestedPaths() []string {
	api.mu.Lock()
	defer api.mu.Unlock()
	return append([]string(nil), api.paths...)
}

func (api *fakeReleaseApi) source(t *testing.T) (source.Source, source.Repo) {
	src, err := source.NewSource(source.TypeGitHub, source.Config{
		ApiUrl:     api.server.URL,
		HttpClient: api.server.Client(),
		Logger:     GetProjectLogger(),
	})
	require.NoError(t, err)

	repo, err := src.ParseUrl(testRepoUrl, "")
	require.NoError(t, err)
	return src, repo
}

func (api *fakeReleaseApi) releaseJSON() github.GitHubReleaseApiResponse {
	release := github.GitHubReleaseApiResponse{
		Id:      1,
		Url:     api.server.URL + "/repos/brawer/osmviews/releases/1",
		TagName: api.tag,
		Name:    "OSMViews " + api.tag,
	}
	for i, asset := range api.assets {
		release.Assets = append(release.Assets, github.GitHubReleaseAsset{
			Id:                 i + 1,
			Name:               asset.name,
			BrowserDownloadUrl: fmt.Sprintf("%s/download/%s/%s", api.server.URL, api.tag, asset.name),
			Size:               int64(len(asset.body)),
			Digest:             asset.digest,
		})
	}
	return release
}

func (api *fakeReleaseApi) serveHTTP(w http.ResponseWriter, r *http.Request) {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.paths = append(api.paths, r.URL.Path)

	const prefix = "/repos/brawer/osmviews/releases"
	path := r.URL.Path

	switch {
	case path == prefix+"/latest":
		json.NewEncoder(w).Encode(api.releaseJSON())

	case strings.HasPrefix(path, prefix+"/tags/"):
		if strings.TrimPrefix(path, prefix+"/tags/") != api.tag {
			http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(api.releaseJSON())

	case path == prefix:
		var releases []github.GitHubReleaseApiResponse
		for i, listed := range api.listed {
			releases = append(releases, github.GitHubReleaseApiResponse{
				Id:         100 + i,
				TagName:    listed.tag,
				Draft:      listed.draft,
				Prerelease: listed.prerelease,
			})
		}
		json.NewEncoder(w).Encode(releases)

	case strings.HasPrefix(path, "/download/"):
		parts := strings.Split(strings.TrimPrefix(path, "/download/"), "/")
		if len(parts) != 2 || parts[0] != api.tag {
			http.NotFound(w, r)
			return
		}
		if parts[1] == api.failAsset {
			http.Error(w, "upstream exploded", http.StatusInternalServerError)
			return
		}
		for _, asset := range api.assets {
			if asset.name == parts[1] {
				fmt.Fprint(w, asset.body)
				return
			}
		}
		http.NotFound(w, r)

	default:
		http.NotFound(w, r)
	}
}

// recordingRunner stands in for the job scheduler and process manager CLIs
type recordingRunner struct {
	mu     sync.Mutex
	calls  [][]string
	failOn string // first argument that makes the command fail
}

func (r *recordingRunner) Run(command string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{command}, args...))
	if r.failOn != "" && len(args) > 0 && args[0] == r.failOn {
		return fmt.Errorf("%s %s: exit status 1", command, args[0])
	}
	return nil
}

// verbs returns "<command> <first arg>" for each recorded call, in order
func (r *recordingRunner) verbs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var verbs []string
	for _, call := range r.calls {
		verb := call[0]
		for _, arg := range call[1:] {
			if !strings.HasPrefix(arg, "-") {
				verb += " " + arg
				break
			}
		}
		verbs = append(verbs, verb)
	}
	return verbs
}
