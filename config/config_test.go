package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "/tmp/openscap_data", cfg.ContentDir)
	assert.Equal(t, "/root/openscap_data", cfg.TargetDir)
	assert.Equal(t, "/usr/share/xml/scap/ssg/content", cfg.SSGDir)
	assert.Equal(t, 5, cfg.FetchRetry)
	assert.Equal(t, "/usr/share/xml/scap/ssg/content/ssg-fedora-ds.xml", cfg.SSGPath())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	appFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(appFs, DefaultPath, []byte(`
content_dir: /var/tmp/content
ssg_product: rhel9
fetch_retry: 2
insecure: true
`), 0644))

	cfg, err := Load(appFs, DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/content", cfg.ContentDir)
	assert.Equal(t, "rhel9", cfg.SSGProduct)
	assert.Equal(t, 2, cfg.FetchRetry)
	assert.True(t, cfg.Insecure)

	// unset fields keep their defaults
	assert.Equal(t, "/root/openscap_data", cfg.TargetDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OSCAP_ADDON_SSG_PRODUCT", "rhel10")
	t.Setenv("OSCAP_ADDON_FETCH_RETRY", "0")

	cfg, err := Load(afero.NewMemMapFs(), DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, "rhel10", cfg.SSGProduct)
	assert.Zero(t, cfg.FetchRetry)
}

func TestLoadBadYAML(t *testing.T) {
	appFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(appFs, DefaultPath, []byte("content_dir: [\n"), 0644))

	_, err := Load(appFs, DefaultPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadBadRetryEnv(t *testing.T) {
	t.Setenv("OSCAP_ADDON_FETCH_RETRY", "lots")

	_, err := Load(afero.NewMemMapFs(), DefaultPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OSCAP_ADDON_FETCH_RETRY")
}
