package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	commonserrors "github.com/gruntwork-io/go-commons/errors"
	"github.com/gruntwork-io/go-commons/logging"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/brawer/osmviews-deploy/source"
	_ "github.com/brawer/osmviews-deploy/source/github" // Register GitHub source
	"github.com/brawer/osmviews-deploy/toolforge"
)

// This variable is set at build time using -ldflags parameters. For more info, see:
// http://stackoverflow.com/a/11355611/483528
var VERSION string

const optionRepo = "repo"
const optionApiUrl = "api-url"
const optionGithubAPIVersion = "github-api-version"
const optionGithubToken = "github-oauth-token"
const optionBinDir = "bin-dir"
const optionPromotion = "promotion"
const optionWebserviceBackend = "webservice-backend"
const optionWebserviceType = "webservice-type"
const optionJobName = "job-name"
const optionJobImage = "job-image"
const optionJobSchedule = "job-schedule"
const optionStorageKey = "storage-key"
const optionConfig = "config"
const optionDryRun = "dry-run"
const optionWithProgress = "progress"
const optionLogLevel = "log-level"

const envVarGithubToken = "GITHUB_OAUTH_TOKEN"

// Create the deploy-release CLI App
func CreateDeployCli(version string, writer io.Writer, errwriter io.Writer) *cli.App {
	defaults := defaultSettings()

	app := &cli.App{
		Name:      "deploy-release",
		Usage:     "deploy-release downloads the assets of a tagged release into bin/<tag>, restarts the web service from it and re-registers the builder job.",
		UsageText: "deploy-release [global options] [tag]\n   tag is \"latest\" (the default), a release tag such as 0.7.2, or a version constraint such as \"~> 0.7\".",
		Version:   version,
		Writer:    writer,
		ErrWriter: errwriter,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  optionRepo,
				Value: defaults.Repo,
				Usage: "Fully qualified URL of the GitHub repo whose releases are deployed.",
			},
			&cli.StringFlag{
				Name:  optionApiUrl,
				Usage: "Base URL of the release API. If left blank, it is derived from --repo.",
			},
			&cli.StringFlag{
				Name:  optionGithubAPIVersion,
				Value: defaults.ApiVersion,
				Usage: "The api version of the GitHub instance.\n\tThis will only be used if the repo url is not a github.com url.",
			},
			&cli.StringFlag{
				Name:    optionGithubToken,
				Usage:   "A GitHub Personal Access Token, passed through to the release API. Populate by setting env var",
				EnvVars: []string{envVarGithubToken},
			},
			&cli.StringFlag{
				Name:  optionBinDir,
				Value: defaults.BinDir,
				Usage: "Directory holding one subdirectory per deployed tag.",
			},
			&cli.StringFlag{
				Name:  optionPromotion,
				Value: defaults.Promotion,
				Usage: "When to remove the previous directory of the same tag: \"rename-aside\" (after the new one is in place)\n\tor \"purge-first\" (before downloading, unsafe).",
			},
			&cli.StringFlag{
				Name:  optionWebserviceBackend,
				Value: defaults.Webservice.Backend,
				Usage: "Backend passed to the webservice command.",
			},
			&cli.StringFlag{
				Name:  optionWebserviceType,
				Value: defaults.Webservice.Type,
				Usage: "Runtime type passed to the webservice command.",
			},
			&cli.StringFlag{
				Name:  optionJobName,
				Value: defaults.Job.Name,
				Usage: "Name of the recurring job that runs the builder.",
			},
			&cli.StringFlag{
				Name:  optionJobImage,
				Value: defaults.Job.Image,
				Usage: "Execution image of the recurring job.",
			},
			&cli.StringFlag{
				Name:  optionJobSchedule,
				Value: defaults.Job.Schedule,
				Usage: "Cron schedule of the recurring job, in UTC.",
			},
			&cli.StringFlag{
				Name:  optionStorageKey,
				Value: defaults.Job.StorageKey,
				Usage: "Credential file passed to the builder as --storage-key.",
			},
			&cli.StringFlag{
				Name:  optionConfig,
				Usage: "Optional YAML settings file. Flags given on the command line take precedence over it.",
			},
			&cli.BoolFlag{
				Name:  optionDryRun,
				Usage: "Resolve the release and print what would happen, without downloading or running anything.",
			},
			&cli.BoolFlag{
				Name:  optionWithProgress,
				Usage: "Display progress on file downloads, especially useful for large files",
			},
			&cli.StringFlag{
				Name:  optionLogLevel,
				Value: DEFAULT_LOG_LEVEL.String(),
				Usage: "The logging level of the command. Acceptable values\n\tare \"trace\", \"debug\", \"info\", \"warn\", \"error\", \"fatal\" and \"panic\".",
			},
		},
		Before: initLogger,
		Action: runDeployWrapper,
	}

	return app
}

func main() {
	app := CreateDeployCli(VERSION, os.Stdout, os.Stderr)

	// Run the definition of App.Action
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger initializes the Logger before any command is actually executed.
func initLogger(cliContext *cli.Context) error {
	logLevel := cliContext.String(optionLogLevel)
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("Error: %s", err)
	}
	logging.SetGlobalLogLevel(level)
	return nil
}

// We just want to call runDeploy(), but we also want a non-zero exit status and a readable message on failure.
func runDeployWrapper(c *cli.Context) error {
	logger := GetProjectLogger()
	err := runDeploy(c, logger, toolforge.NewShellRunner("", logger))
	if err != nil {
		reportError(logger, err)
		os.Exit(1)
	}
	return nil
}

// Run the deploy-release program
func runDeploy(c *cli.Context, logger *logrus.Entry, runner toolforge.CommandRunner) error {
	options, err := parseOptions(c, logger)
	if err != nil {
		return err
	}
	if err := validateOptions(c, options); err != nil {
		return err
	}

	versionPath, err := deploy(options, runner)
	if err != nil {
		return err
	}

	if options.DryRun {
		logger.Infof("Dry run complete; release would be deployed to %s", versionPath)
	} else {
		logger.Infof("Deployed %s", versionPath)
	}
	return nil
}

func parseOptions(c *cli.Context, logger *logrus.Entry) (DeployOptions, error) {
	settings := defaultSettings()
	if path := c.String(optionConfig); path != "" {
		loaded, err := loadSettings(path, settings)
		if err != nil {
			return DeployOptions{}, wrapError(invalidSettings, err)
		}
		settings = loaded
	}

	// Flags only override the settings file when given explicitly
	overrides := []struct {
		option string
		field  *string
	}{
		{optionRepo, &settings.Repo},
		{optionApiUrl, &settings.ApiUrl},
		{optionGithubAPIVersion, &settings.ApiVersion},
		{optionBinDir, &settings.BinDir},
		{optionPromotion, &settings.Promotion},
		{optionWebserviceBackend, &settings.Webservice.Backend},
		{optionWebserviceType, &settings.Webservice.Type},
		{optionJobName, &settings.Job.Name},
		{optionJobImage, &settings.Job.Image},
		{optionJobSchedule, &settings.Job.Schedule},
		{optionStorageKey, &settings.Job.StorageKey},
	}
	for _, override := range overrides {
		if c.IsSet(override.option) {
			*override.field = c.String(override.option)
		}
	}

	selector := c.Args().First()
	if selector == "" {
		selector = source.LatestSelector
	}

	return DeployOptions{
		Selector:     selector,
		Settings:     settings,
		GithubToken:  c.String(optionGithubToken),
		DryRun:       c.Bool(optionDryRun),
		WithProgress: c.Bool(optionWithProgress),
		Logger:       logger,
	}, nil
}

func validateOptions(c *cli.Context, options DeployOptions) error {
	if c.NArg() > 1 {
		return fmt.Errorf("Expected at most one argument (the release tag), got %d. Run \"deploy-release --help\" for full usage info.", c.NArg())
	}

	if options.Settings.Repo == "" {
		return fmt.Errorf("The --%s flag must not be empty. Run \"deploy-release --help\" for full usage info.", optionRepo)
	}

	policy, err := parsePromotionPolicy(options.Settings.Promotion)
	if err != nil {
		return fmt.Errorf("Invalid --%s value: %s", optionPromotion, err)
	}
	if policy == promotionPurgeFirst {
		options.Logger.Warnf("--%s=%s deletes the active version directory before downloading; a failed run leaves no version directory behind", optionPromotion, policy)
	}

	return nil
}

// reportError logs err with the friendliest message available and the stack trace at debug level
func reportError(logger *logrus.Entry, err error) {
	if stepErr := failedStep(err); stepErr != nil {
		logger.Errorf("Deploy aborted in step %s", stepErr.step)
	}

	var deployErr *deployError
	if errors.As(unwrapStepError(err), &deployErr) {
		if msg := getErrorMessage(deployErr.errorCode, deployErr.details); msg != "" {
			logger.Error(msg)
		} else {
			logger.Errorf("%s", err)
		}
	} else {
		logger.Errorf("%s", err)
	}

	logger.Debug(commonserrors.PrintErrorWithStackTrace(err))
}

func unwrapStepError(err error) error {
	if stepErr := failedStep(err); stepErr != nil {
		return stepErr.err
	}
	return err
}

func getErrorMessage(errorCode int, errorDetails string) string {
	switch errorCode {
	case invalidTagConstraintExpression:
		return fmt.Sprintf(`
The tag you entered is not a valid constraint expression.
Use "latest", an exact tag such as 0.7.2, or a constraint such as "~> 0.7".

Underlying error message:
%s
`, errorDetails)
	case invalidGithubTokenOrAccessDenied:
		return fmt.Sprintf(`
Received an HTTP 401 or 403 Response when attempting to query the repo for its releases.

This means that either your GitHub oAuth Token is invalid, or that it does not grant access to the repo.

Underlying error message:
%s
`, errorDetails)
	case releaseDoesNotExistOrAccessDenied:
		return fmt.Sprintf(`
Received an HTTP 404 Response when attempting to query the repo for the release.

This means that either no release with that tag exists (check for typos and for a leading "v"),
or that the repo is private and you need to pass a --%s.

Underlying error message:
%s
`, optionGithubToken, errorDetails)
	case checksumDoesNotMatch:
		return fmt.Sprintf(`
A downloaded release asset does not match the checksum published with the release.
Nothing was promoted; the previously deployed version is untouched.

Underlying error message:
%s
`, errorDetails)
	case deployAlreadyRunning:
		return fmt.Sprintf(`
It looks like another deploy is running against the same bin directory right now.
Wait for it to finish and try again.

Underlying error message:
%s
`, errorDetails)
	}

	return ""
}
