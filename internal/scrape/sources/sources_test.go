package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobscout-engine/internal/config"
	"jobscout-engine/internal/scrape"
)

func TestRegisterAll(t *testing.T) {
	cfg := config.Default().Sources
	cfg.Lever.Companies = []config.Company{{Slug: "acme", Name: "Acme"}}

	reg := scrape.NewRegistry()
	require.NoError(t, RegisterAll(reg, cfg))
	assert.Equal(t, []string{"builtin", "greenhouse", "lever", "remoteok", "smartrecruiters", "workday"}, reg.Names())

	s, err := reg.New("lever", scrape.Deps{})
	require.NoError(t, err)
	assert.Equal(t, "lever", s.Name())

	_, err = reg.New("greenhouse", scrape.Deps{})
	assert.ErrorIs(t, err, scrape.ErrUnsupported, "no boards configured")

	_, err = reg.New("builtin", scrape.Deps{})
	assert.ErrorIs(t, err, scrape.ErrUnsupported, "no browser pool")

	_, err = reg.New("smartrecruiters", scrape.Deps{})
	assert.ErrorIs(t, err, scrape.ErrUnsupported, "no companies configured")

	_, err = reg.New("workday", scrape.Deps{})
	assert.ErrorIs(t, err, scrape.ErrUnsupported, "no portals configured")

	s, err = reg.New("remoteok", scrape.Deps{})
	require.NoError(t, err)
	assert.Equal(t, "https://remoteok.com", s.BaseURL())

	assert.Error(t, RegisterAll(reg, cfg), "registering twice")
}

func TestRegisterAll_OnlyEnabled(t *testing.T) {
	cfg := config.Default().Sources
	cfg.Enabled = []string{"RemoteOK", " lever "}

	reg := scrape.NewRegistry()
	require.NoError(t, RegisterAll(reg, cfg))
	assert.Equal(t, []string{"lever", "remoteok"}, reg.Names())
}
