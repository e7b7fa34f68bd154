package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danjacques/gofslock/fslock"
	"github.com/sirupsen/logrus"

	"github.com/brawer/osmviews-deploy/source"
	"github.com/brawer/osmviews-deploy/toolforge"
)

type DeployOptions struct {
	Selector     string // "latest", a tag, or a version constraint
	Settings     Settings
	GithubToken  string
	DryRun       bool
	WithProgress bool

	// Project logger
	Logger *logrus.Entry
}

// deployment carries the state that flows from one pipeline step to the next
type deployment struct {
	options    DeployOptions
	logger     *logrus.Entry
	src        source.Source
	repo       source.Repo
	layout     versionLayout
	policy     promotionPolicy
	scheduler  *toolforge.Scheduler
	webservice *toolforge.Webservice
	now        func() time.Time

	release     source.Release
	stagingPath string
	versionPath string
}

// deploy resolves, stages and promotes a release, then repoints the web service and the builder
// job at it. runner executes the external commands. Returns the absolute version directory.
func deploy(options DeployOptions, runner toolforge.CommandRunner) (string, error) {
	d, err := newDeployment(options, runner)
	if err != nil {
		return "", err
	}

	if options.DryRun {
		if err := runSteps(d.logger, d.steps()); err != nil {
			return "", err
		}
		return d.versionPath, nil
	}

	if err := os.MkdirAll(d.layout.binDir, 0755); err != nil {
		return "", wrapError(failedToStageRelease, err)
	}

	err = fslock.With(d.layout.lockPath(), func() error {
		return runSteps(d.logger, d.steps())
	})
	if err == fslock.ErrLockHeld {
		return "", newError(deployAlreadyRunning, fmt.Sprintf("lock %s is held", d.layout.lockPath()))
	}
	if err != nil {
		return "", err
	}
	return d.versionPath, nil
}

func newDeployment(options DeployOptions, runner toolforge.CommandRunner) (*deployment, error) {
	logger := options.Logger
	if logger == nil {
		logger = GetProjectLogger()
	}

	settings := options.Settings
	if err := settings.validate(time.Now()); err != nil {
		return nil, err
	}

	policy, err := parsePromotionPolicy(settings.Promotion)
	if err != nil {
		return nil, newError(invalidSettings, err.Error())
	}

	binDir, err := filepath.Abs(settings.BinDir)
	if err != nil {
		return nil, wrapError(invalidSettings, err)
	}

	src, err := source.GetSource(settings.Repo, source.TypeAuto, source.Config{
		ApiVersion: settings.ApiVersion,
		ApiUrl:     settings.ApiUrl,
		Logger:     logger,
	})
	if err != nil {
		return nil, newError(githubRepoUrlMalformedOrNotParseable, err.Error())
	}

	repo, err := src.ParseUrl(settings.Repo, options.GithubToken)
	if err != nil {
		return nil, newError(githubRepoUrlMalformedOrNotParseable, err.Error())
	}

	if options.DryRun {
		runner = &toolforge.DryRunner{Logger: logger}
	}

	scheduler := toolforge.NewScheduler(runner)
	scheduler.Command = settings.Job.Command

	webservice := toolforge.NewWebservice(runner)
	webservice.Command = settings.Webservice.Command
	webservice.Backend = settings.Webservice.Backend
	webservice.Type = settings.Webservice.Type

	options.Settings = settings
	return &deployment{
		options:    options,
		logger:     logger,
		src:        src,
		repo:       repo,
		layout:     versionLayout{binDir: binDir},
		policy:     policy,
		scheduler:  scheduler,
		webservice: webservice,
		now:        time.Now,
	}, nil
}

func (d *deployment) steps() []deployStep {
	return []deployStep{
		{name: "resolve-release", run: d.resolveStep},
		{name: "stage-assets", run: d.stageStep},
		{name: "promote-release", run: d.promoteStep},
		{name: "flush-jobs", run: d.flushStep},
		{name: "restart-webservice", run: d.restartStep},
		{name: "register-builder", run: d.registerStep},
	}
}

func (d *deployment) resolveStep() error {
	d.logger.Infof("Resolving release %q of %s", d.selector(), d.repo.Url)

	release, err := resolveRelease(d.logger, d.src, d.repo, d.selector())
	if err != nil {
		return err
	}
	if err := validateRelease(release); err != nil {
		return err
	}

	settings := d.options.Settings
	for _, required := range []string{settings.Webservice.Asset, settings.Job.Asset} {
		if !hasAsset(release, required) {
			return newError(requiredAssetMissing, fmt.Sprintf("release %s has no asset named %s", release.Tag, required))
		}
	}

	d.release = release
	d.versionPath = d.layout.finalPath(release.Tag)
	d.logger.Infof("Deploying release %s (%d assets)", release.Tag, len(release.Assets))
	return nil
}

func (d *deployment) stageStep() error {
	if d.options.DryRun {
		for _, asset := range d.release.Assets {
			d.logger.Infof("Would download %s into %s", asset.Url, d.layout.stagingPath(d.release.Tag))
		}
		return nil
	}

	stagingPath, err := stageRelease(d.logger, d.src, d.repo, d.release, d.layout, d.policy, d.options.WithProgress)
	if err != nil {
		return err
	}
	d.stagingPath = stagingPath
	return nil
}

func (d *deployment) promoteStep() error {
	if d.options.DryRun {
		d.logger.Infof("Would rename %s to %s", d.layout.stagingPath(d.release.Tag), d.versionPath)
		return nil
	}

	versionPath, err := promoteRelease(d.logger, d.layout, d.release.Tag)
	if err != nil {
		return err
	}
	d.versionPath = versionPath
	return nil
}

func (d *deployment) flushStep() error {
	if err := d.scheduler.Flush(); err != nil {
		return wrapError(externalCommandFailed, err)
	}
	return nil
}

func (d *deployment) restartStep() error {
	binary := filepath.Join(d.versionPath, d.options.Settings.Webservice.Asset)
	if err := d.webservice.Restart(binary); err != nil {
		return wrapError(externalCommandFailed, err)
	}
	return nil
}

func (d *deployment) registerStep() error {
	job := d.builderJob()

	next, err := toolforge.ValidateSchedule(job.Schedule, d.now())
	if err != nil {
		return wrapError(invalidJobSchedule, err)
	}

	if err := d.scheduler.Run(job); err != nil {
		return wrapError(externalCommandFailed, err)
	}
	d.logger.Infof("Job %s registered; next run at %s", job.Name, next.Format(time.RFC3339))
	return nil
}

func (d *deployment) builderJob() toolforge.Job {
	settings := d.options.Settings.Job
	command := filepath.Join(d.versionPath, settings.Asset)
	if settings.StorageKey != "" {
		command = fmt.Sprintf("%s --storage-key=%s", command, settings.StorageKey)
	}

	return toolforge.Job{
		Name:     settings.Name,
		Command:  command,
		Image:    settings.Image,
		Schedule: settings.Schedule,
	}
}

func (d *deployment) selector() string {
	if d.options.Selector == "" {
		return source.LatestSelector
	}
	return d.options.Selector
}

func hasAsset(release source.Release, name string) bool {
	for _, asset := range release.Assets {
		if asset.Name == name {
			return true
		}
	}
	return false
}
