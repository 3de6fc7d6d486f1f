package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

type boardList struct {
	Companies []Company `yaml:"companies"`
}

// CompaniesFile is the optional side file listing the ATS boards to query,
// kept apart so it can be shared between installs.
type CompaniesFile struct {
	Sources struct {
		Lever           boardList `yaml:"lever"`
		Greenhouse      boardList `yaml:"greenhouse"`
		SmartRecruiters boardList `yaml:"smartrecruiters"`
		Workday         boardList `yaml:"workday"`
	} `yaml:"sources"`
}

// OverlayCompanies replaces each board list of cfg that the file at path
// sets. A missing file changes nothing.
func OverlayCompanies(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read companies file: %w", err)
	}

	var cf CompaniesFile
	if err := yaml.Unmarshal(b, &cf); err != nil {
		return fmt.Errorf("parse companies file %s: %w", path, err)
	}

	for _, o := range []struct {
		from []Company
		to   *[]Company
	}{
		{cf.Sources.Lever.Companies, &cfg.Sources.Lever.Companies},
		{cf.Sources.Greenhouse.Companies, &cfg.Sources.Greenhouse.Companies},
		{cf.Sources.SmartRecruiters.Companies, &cfg.Sources.SmartRecruiters.Companies},
		{cf.Sources.Workday.Companies, &cfg.Sources.Workday.Companies},
	} {
		if len(o.from) > 0 {
			*o.to = o.from
		}
	}
	return nil
}
