// Package sources wires the concrete job sources into a registry.
package sources

import (
	"slices"
	"strings"

	"jobscout-engine/internal/config"
	"jobscout-engine/internal/scrape"
	"jobscout-engine/internal/scrape/builtin"
	"jobscout-engine/internal/scrape/greenhouse"
	"jobscout-engine/internal/scrape/lever"
	"jobscout-engine/internal/scrape/remoteok"
	"jobscout-engine/internal/scrape/smartrecruiters"
	"jobscout-engine/internal/scrape/workday"
)

// RegisterAll adds the built-in sources to reg, configured from cfg. When
// cfg.Enabled is set only the sources it names are registered.
func RegisterAll(reg *scrape.Registry, cfg config.SourcesConfig) error {
	leverCfg := lever.Config{MaxPages: cfg.MaxPages}
	for _, c := range cfg.Lever.Companies {
		leverCfg.Companies = append(leverCfg.Companies, lever.Company{Slug: c.Slug, Name: c.Name})
	}
	ghCfg := greenhouse.Config{MaxPages: cfg.MaxPages}
	for _, c := range cfg.Greenhouse.Companies {
		ghCfg.Companies = append(ghCfg.Companies, greenhouse.Company{Slug: c.Slug, Name: c.Name})
	}
	srCfg := smartrecruiters.Config{MaxPages: cfg.MaxPages}
	for _, c := range cfg.SmartRecruiters.Companies {
		srCfg.Companies = append(srCfg.Companies, smartrecruiters.Company{Slug: c.Slug, Name: c.Name})
	}
	wdCfg := workday.Config{MaxPages: cfg.MaxPages}
	for _, c := range cfg.Workday.Companies {
		wdCfg.Companies = append(wdCfg.Companies, workday.Company{BoardURL: c.Slug, Name: c.Name})
	}

	all := []struct {
		name string
		c    scrape.Constructor
	}{
		{remoteok.Name, func(d scrape.Deps) (scrape.Source, error) {
			return remoteok.New(remoteok.Config{BaseURL: cfg.RemoteOK.BaseURL, UseProxy: cfg.RemoteOK.UseProxy}, d)
		}},
		{lever.Name, func(d scrape.Deps) (scrape.Source, error) {
			return lever.New(leverCfg, d)
		}},
		{greenhouse.Name, func(d scrape.Deps) (scrape.Source, error) {
			return greenhouse.New(ghCfg, d)
		}},
		{smartrecruiters.Name, func(d scrape.Deps) (scrape.Source, error) {
			return smartrecruiters.New(srCfg, d)
		}},
		{workday.Name, func(d scrape.Deps) (scrape.Source, error) {
			return workday.New(wdCfg, d)
		}},
		{builtin.Name, func(d scrape.Deps) (scrape.Source, error) {
			return builtin.New(builtin.Config{BaseURL: cfg.BuiltIn.BaseURL, UseProxy: cfg.BuiltIn.UseProxy, MaxPages: cfg.MaxPages}, d)
		}},
	}

	for _, s := range all {
		if len(cfg.Enabled) > 0 && !slices.ContainsFunc(cfg.Enabled, func(n string) bool {
			return strings.EqualFold(strings.TrimSpace(n), s.name)
		}) {
			continue
		}
		if err := reg.Register(s.name, s.c); err != nil {
			return err
		}
	}
	return nil
}
