package main

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/brawer/osmviews-deploy/source"
)

// isTagConstraint reports whether the selector is a version constraint expression such as "~> 0.7"
// rather than a literal tag. Literal tags are passed through to the release host untouched, even
// when they contain operator characters ("build=5").
func isTagConstraint(selector string) bool {
	if !strings.ContainsAny(selector, "~<>=!,") {
		return false
	}
	if _, err := version.NewVersion(selector); err == nil {
		return false
	}
	_, err := version.NewConstraint(selector)
	return err == nil
}

// resolveRelease turns the operator's selector into a concrete release
func resolveRelease(logger *logrus.Entry, src source.Source, repo source.Repo, selector string) (source.Release, error) {
	tag := selector
	if tag == "" {
		tag = source.LatestSelector
	}

	if isTagConstraint(tag) {
		releases, err := src.ListReleases(repo)
		if err != nil {
			return source.Release{}, releaseLookupError(err)
		}

		var tags []string
		for _, release := range releases {
			if release.Draft || release.Prerelease {
				continue
			}
			if _, err := version.NewVersion(release.Tag); err != nil {
				logger.Debugf("Ignoring non-semver release tag %s", release.Tag)
				continue
			}
			tags = append(tags, release.Tag)
		}

		latestTag, fetchErr := getLatestAcceptableTag(tag, tags)
		if fetchErr != nil {
			return source.Release{}, fetchErr
		}
		logger.Infof("Constraint %q resolved to tag %s", tag, latestTag)
		tag = latestTag
	}

	release, err := src.ResolveRelease(repo, tag)
	if err != nil {
		return source.Release{}, releaseLookupError(err)
	}
	return release, nil
}

func releaseLookupError(err error) *deployError {
	var httpErr *source.HttpError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return wrapError(invalidGithubTokenOrAccessDenied, err)
		case http.StatusNotFound:
			return wrapError(releaseDoesNotExistOrAccessDenied, err)
		}
	}
	// Other statuses stay in the details ("HTTP 502 while fetching ...")
	return wrapError(releaseLookupFailed, err)
}

// getLatestAcceptableTag returns the highest tag satisfying tagConstraint, or the highest tag overall
// if the constraint is empty.
func getLatestAcceptableTag(tagConstraint string, tags []string) (string, *deployError) {
	if len(tags) == 0 {
		if tagConstraint == "" {
			return "", nil
		}
		return "", newError(noReleaseMatchesConstraint, fmt.Sprintf("no releases to match against constraint %q", tagConstraint))
	}

	// Our use of the library go-version means that each tag will each be represented as a *version.Version
	versions := make([]*version.Version, len(tags))
	originalTags := make(map[*version.Version]string, len(tags))
	for i, tag := range tags {
		v, err := version.NewVersion(tag)
		if err != nil {
			return "", wrapError(releaseLookupFailed, err)
		}

		versions[i] = v
		originalTags[v] = tag
	}
	sort.Sort(version.Collection(versions))

	// If the tag constraint is empty, just return the latest
	if tagConstraint == "" {
		return originalTags[versions[len(versions)-1]], nil
	}

	constraints, err := version.NewConstraint(tagConstraint)
	if err != nil {
		// Explicitly check for a malformed tag value so we can return a nice error to the user
		return "", newError(invalidTagConstraintExpression, err.Error())
	}

	var latestAcceptableVersion *version.Version
	for _, v := range versions {
		if constraints.Check(v) {
			latestAcceptableVersion = v
		}
	}

	if latestAcceptableVersion == nil {
		return "", newError(noReleaseMatchesConstraint, fmt.Sprintf("none of the tags %v satisfies constraint %q", tags, tagConstraint))
	}

	// The tag name may have started with a "v" or other string, so return it exactly as published
	return originalTags[latestAcceptableVersion], nil
}
