package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/brawer/osmviews-deploy/source"
)

// Mode of every deployed asset: rwxr-xr-x
const executableFileMode os.FileMode = 0755

const currentLinkName = "current"
const lockFileName = ".deploy.lock"

// promotionPolicy decides when the previous directory for a tag is removed
type promotionPolicy string

const (
	// The previous directory is moved aside and only deleted once the new one is in place.
	promotionRenameAside promotionPolicy = "rename-aside"

	// The previous directory is deleted before staging starts. Kept for comparison only: a failed
	// download leaves no directory for the tag at all.
	promotionPurgeFirst promotionPolicy = "purge-first"
)

func parsePromotionPolicy(s string) (promotionPolicy, error) {
	switch promotionPolicy(strings.ToLower(s)) {
	case promotionRenameAside, "":
		return promotionRenameAside, nil
	case promotionPurgeFirst:
		return promotionPurgeFirst, nil
	default:
		return "", fmt.Errorf("unknown promotion policy %q (valid: %s, %s)", s, promotionRenameAside, promotionPurgeFirst)
	}
}

// versionLayout maps tags to directories under the bin root.
//
//	<bin>/<tag>            active version directory
//	<bin>/tmp-<tag>.tmp    staging directory while downloading
//	<bin>/old-<tag>.tmp    previous contents of <bin>/<tag> during promotion
//	<bin>/current          symlink to the most recently promoted tag
type versionLayout struct {
	binDir string
}

func (l versionLayout) finalPath(tag string) string {
	return filepath.Join(l.binDir, tag)
}

func (l versionLayout) stagingPath(tag string) string {
	return filepath.Join(l.binDir, fmt.Sprintf("tmp-%s.tmp", tag))
}

func (l versionLayout) retiredPath(tag string) string {
	return filepath.Join(l.binDir, fmt.Sprintf("old-%s.tmp", tag))
}

func (l versionLayout) currentLink() string {
	return filepath.Join(l.binDir, currentLinkName)
}

func (l versionLayout) lockPath() string {
	return filepath.Join(l.binDir, lockFileName)
}

// validatePathComponent rejects names that would escape or alias a directory when joined to it
func validatePathComponent(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%s %q cannot be used as a file name", kind, name)
	}
	return nil
}

func validateRelease(release source.Release) *deployError {
	if err := validatePathComponent("release tag", release.Tag); err != nil {
		return wrapError(invalidAssetName, err)
	}
	// The bin directory's own entries: current, the lock file and the .tmp staging names
	if release.Tag == currentLinkName || strings.HasPrefix(release.Tag, ".") || strings.HasSuffix(release.Tag, ".tmp") {
		return newError(invalidAssetName, fmt.Sprintf("release tag %q collides with a reserved name in the bin directory", release.Tag))
	}

	seen := make(map[string]bool, len(release.Assets))
	for _, asset := range release.Assets {
		if err := validatePathComponent("asset name", asset.Name); err != nil {
			return wrapError(invalidAssetName, err)
		}
		if seen[asset.Name] {
			return newError(invalidAssetName, fmt.Sprintf("asset name %q appears more than once in release %s", asset.Name, release.Tag))
		}
		seen[asset.Name] = true
	}
	return nil
}

// recoverInterruptedPromotion puts a retired directory back if a previous run died between
// moving it aside and renaming the new version into place.
func recoverInterruptedPromotion(logger *logrus.Entry, layout versionLayout, tag string) error {
	retired := layout.retiredPath(tag)
	if _, err := os.Stat(retired); os.IsNotExist(err) {
		return nil
	}

	final := layout.finalPath(tag)
	if _, err := os.Lstat(final); err == nil {
		// The new version made it into place; the leftover is garbage.
		logger.Warnf("Removing leftover %s from an earlier run", retired)
		return os.RemoveAll(retired)
	} else if !os.IsNotExist(err) {
		return err
	}

	logger.Warnf("Restoring %s from %s, left behind by an interrupted promotion", final, retired)
	return os.Rename(retired, final)
}

// stageRelease downloads every asset of release, one at a time, into a fresh staging directory and
// returns its path. Nothing outside the staging directory is touched unless policy is purge-first.
func stageRelease(logger *logrus.Entry, src source.Source, repo source.Repo, release source.Release, layout versionLayout, policy promotionPolicy, withProgress bool) (string, error) {
	if err := validateRelease(release); err != nil {
		return "", err
	}

	if err := recoverInterruptedPromotion(logger, layout, release.Tag); err != nil {
		return "", wrapError(failedToStageRelease, err)
	}

	if policy == promotionPurgeFirst {
		logger.Warnf("Deleting %s before staging; a failed download will leave no version directory for %s", layout.finalPath(release.Tag), release.Tag)
		if err := os.RemoveAll(layout.finalPath(release.Tag)); err != nil {
			return "", wrapError(failedToStageRelease, err)
		}
	}

	stagingPath := layout.stagingPath(release.Tag)
	if err := os.RemoveAll(stagingPath); err != nil {
		return "", wrapError(failedToStageRelease, fmt.Errorf("failed to remove old staging directory %s: %w", stagingPath, err))
	}
	if err := os.MkdirAll(stagingPath, 0755); err != nil {
		return "", wrapError(failedToStageRelease, fmt.Errorf("failed to create staging directory %s: %w", stagingPath, err))
	}

	var totalBytes uint64
	for i, asset := range release.Assets {
		assetPath := filepath.Join(stagingPath, asset.Name)
		if asset.Size > 0 {
			logger.Infof("Downloading asset %d/%d %s (%s)", i+1, len(release.Assets), asset.Name, humanize.Bytes(uint64(asset.Size)))
		} else {
			logger.Infof("Downloading asset %d/%d %s", i+1, len(release.Assets), asset.Name)
		}
		logger.Debugf("Fetching %s into %s", asset.Url, assetPath)

		if err := src.DownloadReleaseAsset(repo, asset, assetPath, withProgress); err != nil {
			return "", wrapError(failedToDownloadAsset, fmt.Errorf("download of %s failed: %w", asset.Name, err))
		}

		if err := os.Chmod(assetPath, executableFileMode); err != nil {
			return "", wrapError(failedToStageRelease, err)
		}

		if fetchErr := verifyAssetDigest(logger, assetPath, asset.Digest); fetchErr != nil {
			return "", fetchErr
		}

		info, err := os.Stat(assetPath)
		if err != nil {
			return "", wrapError(failedToStageRelease, err)
		}
		totalBytes += uint64(info.Size())
	}

	if err := syncDir(stagingPath); err != nil {
		return "", wrapError(failedToStageRelease, err)
	}

	plural := ""
	if len(release.Assets) != 1 {
		plural = "s"
	}
	logger.Infof("Staged %d asset%s (%s) in %s", len(release.Assets), plural, humanize.Bytes(totalBytes), stagingPath)
	return stagingPath, nil
}

// promoteRelease renames the staging directory for tag onto its final path and repoints the
// current link. The previous directory for the same tag is only deleted after both succeeded.
func promoteRelease(logger *logrus.Entry, layout versionLayout, tag string) (string, error) {
	staging := layout.stagingPath(tag)
	final := layout.finalPath(tag)
	retired := layout.retiredPath(tag)

	if _, err := os.Stat(staging); err != nil {
		return "", wrapError(failedToPromoteRelease, fmt.Errorf("staging directory %s is missing: %w", staging, err))
	}

	hadPrevious := false
	if _, err := os.Lstat(final); err == nil {
		if err := os.RemoveAll(retired); err != nil {
			return "", wrapError(failedToPromoteRelease, err)
		}
		if err := os.Rename(final, retired); err != nil {
			return "", wrapError(failedToPromoteRelease, fmt.Errorf("failed to move %s aside: %w", final, err))
		}
		hadPrevious = true
	} else if !os.IsNotExist(err) {
		return "", wrapError(failedToPromoteRelease, err)
	}

	if err := os.Rename(staging, final); err != nil {
		if hadPrevious {
			if restoreErr := os.Rename(retired, final); restoreErr != nil {
				logger.Errorf("Failed to restore %s from %s: %s", final, retired, restoreErr)
			}
		}
		return "", wrapError(failedToPromoteRelease, fmt.Errorf("failed to rename %s to %s: %w", staging, final, err))
	}

	if err := syncDir(layout.binDir); err != nil {
		return "", wrapError(failedToPromoteRelease, err)
	}

	if err := updateCurrentLink(layout, tag); err != nil {
		return "", wrapError(failedToPromoteRelease, fmt.Errorf("failed to point %s at %s: %w", layout.currentLink(), tag, err))
	}

	if hadPrevious {
		if err := os.RemoveAll(retired); err != nil {
			logger.Warnf("Promoted %s but could not remove %s: %s", final, retired, err)
		}
	}

	logger.Infof("Promoted %s", final)
	return final, nil
}

// updateCurrentLink swaps <bin>/current to point at tag. The new link is created under a temporary
// name and renamed over the old one, so readers see either the old or the new target.
func updateCurrentLink(layout versionLayout, tag string) error {
	link := layout.currentLink()
	tmpLink := link + ".tmp"

	if err := os.Remove(tmpLink); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(tag, tmpLink); err != nil {
		return err
	}
	if err := os.Rename(tmpLink, link); err != nil {
		os.Remove(tmpLink)
		return err
	}
	return syncDir(layout.binDir)
}

// syncDir flushes directory entries of path to stable storage
func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
