package main

const invalidTagConstraintExpression = 100
const noReleaseMatchesConstraint = 110

const githubRepoUrlMalformedOrNotParseable = 300
const releaseLookupFailed = 310

const invalidGithubTokenOrAccessDenied = 401
const releaseDoesNotExistOrAccessDenied = 404

const failedToDownloadAsset = 500
const checksumDoesNotMatch = 510
const errorWhileComputingChecksum = 520
const invalidAssetName = 530
const requiredAssetMissing = 540

const failedToStageRelease = 600
const failedToPromoteRelease = 610

const externalCommandFailed = 700
const invalidJobSchedule = 710

const invalidSettings = 800

const deployAlreadyRunning = 900
