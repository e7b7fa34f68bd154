package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brawer/osmviews-deploy/toolforge"
)

const defaultRepoUrl = "https://github.com/brawer/osmviews"
const defaultBinDir = "bin"
const defaultWebserverAsset = "webserver"
const defaultBuilderAsset = "builder"
const defaultStorageKey = "keys/storage-key"

// Settings describe where releases come from and how the host runs them
type Settings struct {
	// Repo is the URL of the repository whose releases are deployed.
	Repo string `yaml:"repo"`
	// ApiUrl overrides the release API base derived from Repo.
	ApiUrl string `yaml:"api_url"`
	// ApiVersion is used for GitHub Enterprise hosts.
	ApiVersion string `yaml:"api_version"`
	// BinDir holds one subdirectory per deployed tag.
	BinDir string `yaml:"bin_dir"`
	// Promotion is "rename-aside" or "purge-first".
	Promotion string `yaml:"promotion"`

	Webservice WebserviceSettings `yaml:"webservice"`
	Job        JobSettings        `yaml:"job"`
}

// WebserviceSettings configure the process manager restart
type WebserviceSettings struct {
	Command string `yaml:"command"`
	Backend string `yaml:"backend"`
	Type    string `yaml:"type"`
	// Asset is the release asset started as the web server.
	Asset string `yaml:"asset"`
}

// JobSettings configure the recurring builder job
type JobSettings struct {
	Command  string `yaml:"command"`
	Name     string `yaml:"name"`
	Image    string `yaml:"image"`
	Schedule string `yaml:"schedule"`
	// Asset is the release asset the job runs.
	Asset string `yaml:"asset"`
	// StorageKey is passed to the job as --storage-key.
	StorageKey string `yaml:"storage_key"`
}

func defaultSettings() Settings {
	return Settings{
		Repo:       defaultRepoUrl,
		ApiVersion: "v3",
		BinDir:     defaultBinDir,
		Promotion:  string(promotionRenameAside),
		Webservice: WebserviceSettings{
			Command: toolforge.DefaultWebserviceCommand,
			Backend: toolforge.DefaultBackend,
			Type:    toolforge.DefaultWebserviceType,
			Asset:   defaultWebserverAsset,
		},
		Job: JobSettings{
			Command:    toolforge.DefaultJobsCommand,
			Name:       toolforge.DefaultJobName,
			Image:      toolforge.DefaultJobImage,
			Schedule:   toolforge.DefaultJobSchedule,
			Asset:      defaultBuilderAsset,
			StorageKey: defaultStorageKey,
		},
	}
}

// loadSettings overlays the YAML file at path onto base. Keys absent from the file keep their
// value from base; unknown keys are an error.
func loadSettings(path string, base Settings) (Settings, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return base, fmt.Errorf("read settings: %w", err)
	}

	settings := base
	decoder := yaml.NewDecoder(bytes.NewReader(contents))
	decoder.KnownFields(true)
	if err := decoder.Decode(&settings); err != nil && err != io.EOF {
		return base, fmt.Errorf("unmarshal settings %s: %w", path, err)
	}

	return settings, nil
}

// validate fills blank fields with defaults and rejects values that would fail halfway through a deploy
func (s *Settings) validate(now time.Time) error {
	defaults := defaultSettings()
	fillDefault(&s.Repo, defaults.Repo)
	fillDefault(&s.ApiVersion, defaults.ApiVersion)
	fillDefault(&s.BinDir, defaults.BinDir)
	fillDefault(&s.Promotion, defaults.Promotion)
	fillDefault(&s.Webservice.Command, defaults.Webservice.Command)
	fillDefault(&s.Webservice.Backend, defaults.Webservice.Backend)
	fillDefault(&s.Webservice.Type, defaults.Webservice.Type)
	fillDefault(&s.Webservice.Asset, defaults.Webservice.Asset)
	fillDefault(&s.Job.Command, defaults.Job.Command)
	fillDefault(&s.Job.Name, defaults.Job.Name)
	fillDefault(&s.Job.Image, defaults.Job.Image)
	fillDefault(&s.Job.Schedule, defaults.Job.Schedule)
	fillDefault(&s.Job.Asset, defaults.Job.Asset)

	if _, err := parsePromotionPolicy(s.Promotion); err != nil {
		return newError(invalidSettings, err.Error())
	}

	if err := validatePathComponent("webservice asset", s.Webservice.Asset); err != nil {
		return newError(invalidSettings, err.Error())
	}
	if err := validatePathComponent("job asset", s.Job.Asset); err != nil {
		return newError(invalidSettings, err.Error())
	}

	if _, err := toolforge.ValidateSchedule(s.Job.Schedule, now); err != nil {
		return wrapError(invalidJobSchedule, err)
	}

	return nil
}

func fillDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}
