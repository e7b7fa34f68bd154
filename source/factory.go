package source

import (
	"fmt"
	"net/url"
)

// DetectSourceType determines the provider from a repo URL.
// Every http(s) host is treated as GitHub: github.com itself or a GitHub Enterprise instance.
func DetectSourceType(repoUrl string) (SourceType, error) {
	u, err := url.Parse(repoUrl)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid URL %s: scheme must be http or https", repoUrl)
	}

	if u.Host == "" {
		return "", fmt.Errorf("invalid URL %s: missing host", repoUrl)
	}

	return TypeGitHub, nil
}

// GetSource auto-detects or uses explicit type to create a Source implementation
func GetSource(repoUrl string, explicitType SourceType, config Config) (Source, error) {
	srcType := explicitType
	if srcType == "" || srcType == TypeAuto {
		detected, err := DetectSourceType(repoUrl)
		if err != nil {
			return nil, err
		}
		srcType = detected
	}

	return NewSource(srcType, config)
}

// NewSource creates a Source implementation based on type
func NewSource(sourceType SourceType, config Config) (Source, error) {
	switch sourceType {
	case TypeGitHub:
		if NewGitHubSource == nil {
			return nil, fmt.Errorf("github source is not registered; import the source/github package")
		}
		return NewGitHubSource(config), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// NewGitHubSource is set by the source/github package when it is imported
var NewGitHubSource func(config Config) Source
