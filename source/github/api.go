package github

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/brawer/osmviews-deploy/source"
)

var nextLinkRegex = regexp.MustCompile(`<(.+?)>;\s*rel="next"`)

// callGitHubApi performs a GET against the API base of the given repo
func (s *GitHubSource) callGitHubApi(repo source.Repo, path string, customHeaders map[string]string) (*http.Response, error) {
	url := fmt.Sprintf("%s/%s", repo.ApiUrl, path)
	return s.callGitHubApiRaw(url, "GET", repo.Token, customHeaders)
}

// callGitHubApiRaw performs raw HTTP request and turns any non-200 answer into a *source.HttpError
func (s *GitHubSource) callGitHubApiRaw(url, method, token string, customHeaders map[string]string) (*http.Response, error) {
	request, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}

	if token != "" {
		request.Header.Set("Authorization", fmt.Sprintf("token %s", token))
	}

	for headerName, headerValue := range customHeaders {
		request.Header.Set(headerName, headerValue)
	}

	if s.logger != nil {
		s.logger.Debugf("%s %s", method, url)
	}

	resp, err := s.httpClient().Do(request)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		buf := new(bytes.Buffer)
		if _, goErr := buf.ReadFrom(resp.Body); goErr != nil {
			return nil, goErr
		}
		return nil, &source.HttpError{StatusCode: resp.StatusCode, Url: url, Body: buf.String()}
	}

	return resp, nil
}

func (s *GitHubSource) httpClient() *http.Client {
	if s.config.HttpClient != nil {
		return s.config.HttpClient
	}
	return http.DefaultClient
}

// getNextUrl extracts next page URL from Link header
func getNextUrl(links string) string {
	if len(links) == 0 {
		return ""
	}

	for _, link := range strings.Split(links, ",") {
		urlMatches := nextLinkRegex.FindStringSubmatch(link)
		if len(urlMatches) == 2 {
			return strings.TrimSpace(urlMatches[1])
		}
	}

	return ""
}

// writeCounter tracks download progress
type writeCounter struct {
	written uint64
	suffix  string // contains " / SIZE" if size is known, otherwise empty
}

func newWriteCounter(total int64) *writeCounter {
	if total > 0 {
		return &writeCounter{
			suffix: fmt.Sprintf(" / %s", humanize.Bytes(uint64(total))),
		}
	}
	return &writeCounter{}
}

func (wc *writeCounter) Write(p []byte) (int, error) {
	n := len(p)
	wc.written += uint64(n)
	wc.PrintProgress()
	return n, nil
}

func (wc writeCounter) PrintProgress() {
	// Clear the line, then print the current status of the download
	fmt.Printf("\r%s", strings.Repeat(" ", 35))
	fmt.Printf("\rDownloading... %s%s", humanize.Bytes(wc.written), wc.suffix)
}

// writeResponseToDisk writes the HTTP response body verbatim to destPath and fsyncs it
func writeResponseToDisk(resp *http.Response, destPath string, withProgress bool) error {
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	var reader io.Reader
	if withProgress {
		reader = io.TeeReader(resp.Body, newWriteCounter(resp.ContentLength))
	} else {
		reader = resp.Body
	}

	if _, err := io.Copy(out, reader); err != nil {
		return err
	}
	if withProgress {
		fmt.Println()
	}

	if err := out.Sync(); err != nil {
		return err
	}
	return out.Close()
}
