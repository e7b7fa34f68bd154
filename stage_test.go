package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brawer/osmviews-deploy/source"
)

func stageAndPromote(t *testing.T, api *fakeReleaseApi, layout versionLayout, tag string, policy promotionPolicy) (string, error) {
	src, repo := api.source(t)
	release, err := src.ResolveRelease(repo, tag)
	require.NoError(t, err)

	if _, err := stageRelease(GetProjectLogger(), src, repo, release, layout, policy, false); err != nil {
		return "", err
	}
	return promoteRelease(GetProjectLogger(), layout, tag)
}

func requireFileContents(t *testing.T, path string, expected string) {
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, expected, string(contents), path)
}

func requireDeployErrorCode(t *testing.T, err error, expectedCode int) {
	require.Error(t, err)
	deployErr, ok := err.(*deployError)
	require.True(t, ok, "expected *deployError, got %T: %s", err, err)
	assert.Equal(t, expectedCode, deployErr.errorCode, deployErr.details)
}

func TestStageReleaseWritesExecutableAssets(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.3",
		fakeAsset{name: "webserver", body: "webserver v0.0.3"},
		fakeAsset{name: "builder", body: "builder v0.0.3", digest: sha256Digest("builder v0.0.3")},
		fakeAsset{name: "README.txt", body: "read me"},
	)
	layout := versionLayout{binDir: t.TempDir()}

	versionPath, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(layout.binDir, "0.0.3"), versionPath)

	entries, err := os.ReadDir(versionPath)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	for _, asset := range api.assets {
		path := filepath.Join(versionPath, asset.name)
		requireFileContents(t, path, asset.body)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, executableFileMode, info.Mode().Perm(), path)
	}

	// Nothing but the version directory, the current link and the lock may remain
	assert.NoDirExists(t, layout.stagingPath("0.0.3"))
	assert.NoDirExists(t, layout.retiredPath("0.0.3"))
}

func TestStageReleaseTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.3", fakeAsset{name: "webserver", body: "w"}, fakeAsset{name: "builder", body: "b"})
	layout := versionLayout{binDir: t.TempDir()}

	_, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)
	versionPath, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)

	requireFileContents(t, filepath.Join(versionPath, "webserver"), "w")
	requireFileContents(t, filepath.Join(versionPath, "builder"), "b")
	assert.NoDirExists(t, layout.retiredPath("0.0.3"))
}

func TestRedeployReplacesContents(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.3", fakeAsset{name: "webserver", body: "first"}, fakeAsset{name: "stale", body: "gone soon"})
	layout := versionLayout{binDir: t.TempDir()}

	_, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)

	api.publish("0.0.3", fakeAsset{name: "webserver", body: "second"})
	versionPath, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)

	requireFileContents(t, filepath.Join(versionPath, "webserver"), "second")
	assert.NoFileExists(t, filepath.Join(versionPath, "stale"))
}

func TestFailedDownloadKeepsPreviousVersion(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.3", fakeAsset{name: "webserver", body: "old webserver"}, fakeAsset{name: "builder", body: "old builder"})
	layout := versionLayout{binDir: t.TempDir()}

	_, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)

	api.publish("0.0.3", fakeAsset{name: "webserver", body: "new webserver"}, fakeAsset{name: "builder", body: "new builder"})
	api.failDownloadOf("builder")

	_, err = stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	requireDeployErrorCode(t, err, failedToDownloadAsset)

	versionPath := layout.finalPath("0.0.3")
	requireFileContents(t, filepath.Join(versionPath, "webserver"), "old webserver")
	requireFileContents(t, filepath.Join(versionPath, "builder"), "old builder")
}

func TestPurgeFirstLosesPreviousVersionOnFailedDownload(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.3", fakeAsset{name: "webserver", body: "old webserver"}, fakeAsset{name: "builder", body: "old builder"})
	layout := versionLayout{binDir: t.TempDir()}

	_, err := stageAndPromote(t, api, layout, "0.0.3", promotionPurgeFirst)
	require.NoError(t, err)

	api.failDownloadOf("builder")

	_, err = stageAndPromote(t, api, layout, "0.0.3", promotionPurgeFirst)
	requireDeployErrorCode(t, err, failedToDownloadAsset)
	assert.NoDirExists(t, layout.finalPath("0.0.3"))
}

func TestStageReleaseRejectsChecksumMismatch(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.3", fakeAsset{name: "webserver", body: "tampered", digest: sha256Digest("original")})
	layout := versionLayout{binDir: t.TempDir()}

	_, err := stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	requireDeployErrorCode(t, err, checksumDoesNotMatch)
	assert.NoDirExists(t, layout.finalPath("0.0.3"))
}

func TestPromoteReleaseUpdatesCurrentLink(t *testing.T) {
	t.Parallel()

	api := newFakeReleaseApi(t, "0.0.2", fakeAsset{name: "webserver", body: "w2"})
	layout := versionLayout{binDir: t.TempDir()}

	_, err := stageAndPromote(t, api, layout, "0.0.2", promotionRenameAside)
	require.NoError(t, err)
	target, err := os.Readlink(layout.currentLink())
	require.NoError(t, err)
	assert.Equal(t, "0.0.2", target)

	api.publish("0.0.3", fakeAsset{name: "webserver", body: "w3"})
	_, err = stageAndPromote(t, api, layout, "0.0.3", promotionRenameAside)
	require.NoError(t, err)
	target, err = os.Readlink(layout.currentLink())
	require.NoError(t, err)
	assert.Equal(t, "0.0.3", target)

	// Older versions stay around for rollback
	requireFileContents(t, filepath.Join(layout.finalPath("0.0.2"), "webserver"), "w2")
	requireFileContents(t, filepath.Join(layout.currentLink(), "webserver"), "w3")
}

func TestPromoteReleaseWithoutStagingDirectory(t *testing.T) {
	t.Parallel()

	layout := versionLayout{binDir: t.TempDir()}
	_, err := promoteRelease(GetProjectLogger(), layout, "0.0.3")
	requireDeployErrorCode(t, err, failedToPromoteRelease)
}

func TestRecoverInterruptedPromotionRestoresRetiredDirectory(t *testing.T) {
	t.Parallel()

	layout := versionLayout{binDir: t.TempDir()}
	retired := layout.retiredPath("0.0.3")
	require.NoError(t, os.MkdirAll(retired, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(retired, "webserver"), []byte("old"), executableFileMode))

	require.NoError(t, recoverInterruptedPromotion(GetProjectLogger(), layout, "0.0.3"))

	requireFileContents(t, filepath.Join(layout.finalPath("0.0.3"), "webserver"), "old")
	assert.NoDirExists(t, retired)
}

func TestRecoverInterruptedPromotionDropsLeftover(t *testing.T) {
	t.Parallel()

	layout := versionLayout{binDir: t.TempDir()}
	final := layout.finalPath("0.0.3")
	retired := layout.retiredPath("0.0.3")
	require.NoError(t, os.MkdirAll(final, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(final, "webserver"), []byte("new"), executableFileMode))
	require.NoError(t, os.MkdirAll(retired, 0755))

	require.NoError(t, recoverInterruptedPromotion(GetProjectLogger(), layout, "0.0.3"))

	requireFileContents(t, filepath.Join(final, "webserver"), "new")
	assert.NoDirExists(t, retired)
}

func TestValidateRelease(t *testing.T) {
	t.Parallel()

	assets := func(names ...string) []source.ReleaseAsset {
		var out []source.ReleaseAsset
		for _, name := range names {
			out = append(out, source.ReleaseAsset{Name: name})
		}
		return out
	}

	cases := []struct {
		description string
		release     source.Release
		valid       bool
	}{
		{"plain", source.Release{Tag: "0.0.3", Assets: assets("webserver", "builder")}, true},
		{"no assets", source.Release{Tag: "v1.2.3"}, true},
		{"empty tag", source.Release{Tag: "", Assets: assets("webserver")}, false},
		{"tag with slash", source.Release{Tag: "release/1", Assets: assets("webserver")}, false},
		{"dot-dot tag", source.Release{Tag: "..", Assets: assets("webserver")}, false},
		{"tag named current", source.Release{Tag: "current", Assets: assets("webserver")}, false},
		{"tag with tmp suffix", source.Release{Tag: "1.0.tmp", Assets: assets("webserver")}, false},
		{"tag named like the lock file", source.Release{Tag: lockFileName, Assets: assets("webserver")}, false},
		{"hidden tag", source.Release{Tag: ".hidden", Assets: assets("webserver")}, false},
		{"asset with slash", source.Release{Tag: "0.0.3", Assets: assets("../../etc/passwd")}, false},
		{"asset with backslash", source.Release{Tag: "0.0.3", Assets: assets(`..\webserver`)}, false},
		{"duplicate asset", source.Release{Tag: "0.0.3", Assets: assets("webserver", "webserver")}, false},
	}

	for _, tc := range cases {
		err := validateRelease(tc.release)
		if tc.valid {
			assert.Nil(t, err, tc.description)
		} else {
			require.NotNil(t, err, tc.description)
			assert.Equal(t, invalidAssetName, err.errorCode, tc.description)
		}
	}
}

func TestParsePromotionPolicy(t *testing.T) {
	t.Parallel()

	policy, err := parsePromotionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, promotionRenameAside, policy)

	policy, err = parsePromotionPolicy("Purge-First")
	require.NoError(t, err)
	assert.Equal(t, promotionPurgeFirst, policy)

	_, err = parsePromotionPolicy("overwrite")
	assert.Error(t, err)
}
