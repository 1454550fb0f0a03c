package install

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/oscap"
	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
	"github.com/OpenSCAP/oscap-anaconda-addon/rules"
	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

const dsBody = `<?xml version="1.0"?>
<ds:data-stream-collection xmlns:ds="http://scap.nist.gov/schema/scap/source/1.2">
  <ds:data-stream id="ds1"/>
</ds:data-stream-collection>
`

func TestRunTasks(t *testing.T) {
	var order []string
	step := func(name string, err error) Task {
		return Task{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return err
		}}
	}

	err := RunTasks(context.Background(), []Task{
		step("first", nil),
		step("second", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	order = nil
	err = RunTasks(context.Background(), []Task{
		step("first", xerrors.New("boom")),
		step("second", nil),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task first failed")
	assert.Equal(t, []string{"first"}, order)
}

func TestRunTasksCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTasks(ctx, []Task{{Name: "never", Run: func(context.Context) error {
		t.Fatal("the task must not run")
		return nil
	}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func newTestInstaller(t *testing.T, data policy.Data, fixes string) *Installer {
	t.Helper()
	i := New(data, t.TempDir())
	i.ContentDir = t.TempDir()
	i.Discoverer.ContentDir = i.ContentDir
	i.Discoverer.Fetcher.Retry = 0
	i.Fs = utils.NewFs(afero.NewMemMapFs())
	i.Launcher = oscap.NewWithRunner(func(name string, args ...string) (string, string, int, error) {
		return fixes, "", 0, nil
	})
	i.InstallPackages = func(sysroot string, packages []string) error {
		return nil
	}
	return i
}

func TestConfigurationTasks(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dsBody))
	}))
	defer ts.Close()

	data := policy.Data{
		ContentType: policy.TypeDataStream,
		ContentURL:  ts.URL + "/ssg-ds.xml",
		ProfileID:   "ospp",
	}
	i := newTestInstaller(t, data, "part /tmp --mountoptions=nodev\npackage --add=aide\n")
	i.State.MountPoints["/tmp"] = nil

	err := RunTasks(context.Background(), i.ConfigurationTasks())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(i.ContentDir, "ssg-ds.xml"), i.contentPath)
	assert.Equal(t, []string{"nodev"}, i.State.MountPoints["/tmp"])
	assert.Equal(t, []string{"aide"}, i.State.Packages)

	// the findings are stored for the UI to pick up
	raw, err := afero.ReadFile(i.Fs.AppFs, filepath.Join(i.ContentDir, MessagesName))
	require.NoError(t, err)
	var messages []rules.Message
	require.NoError(t, json.Unmarshal(raw, &messages))
	assert.Len(t, messages, 2)
}

func TestFetchContentSkipsAvailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("the content must not be fetched again")
	}))
	defer ts.Close()

	data := policy.Data{
		ContentType: policy.TypeDataStream,
		ContentURL:  ts.URL + "/ssg-ds.xml",
	}
	i := newTestInstaller(t, data, "")
	require.NoError(t, os.WriteFile(filepath.Join(i.ContentDir, "ssg-ds.xml"), []byte(dsBody), 0644))

	require.NoError(t, i.fetchContent(context.Background()))
	assert.Equal(t, filepath.Join(i.ContentDir, "ssg-ds.xml"), i.contentPath)
}

func TestEvaluateRulesFatal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(dsBody))
	}))
	defer ts.Close()

	data := policy.Data{
		ContentType: policy.TypeDataStream,
		ContentURL:  ts.URL + "/ssg-ds.xml",
		ProfileID:   "ospp",
	}
	i := newTestInstaller(t, data, "part /var/log/audit --mountoptions=nodev\n")

	err := RunTasks(context.Background(), i.ConfigurationTasks())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatalFindings)
	assert.True(t, rules.HasFatal(i.Messages()))
}

func TestInstallContent(t *testing.T) {
	data := policy.Data{
		ContentType: policy.TypeDataStream,
		ContentURL:  "https://example.com/ssg-ds.xml",
	}
	i := newTestInstaller(t, data, "")
	require.NoError(t, os.WriteFile(filepath.Join(i.ContentDir, "ssg-ds.xml"), []byte(dsBody), 0644))

	require.NoError(t, i.installContent(context.Background()))

	copied := filepath.Join(i.Sysroot, i.TargetDir, "ssg-ds.xml")
	b, err := os.ReadFile(copied)
	require.NoError(t, err)
	assert.Equal(t, dsBody, string(b))
}

func TestInstallContentSSG(t *testing.T) {
	ssgPath := filepath.Join(t.TempDir(), "ssg-testos-ds.xml")
	require.NoError(t, os.WriteFile(ssgPath, []byte(dsBody), 0644))

	data := policy.Data{ContentType: policy.TypeSSG, ContentPath: ssgPath}
	i := newTestInstaller(t, data, "")

	// the content comes from the scap-security-guide package requirement,
	// nothing is copied or installed here
	i.InstallPackages = func(sysroot string, packages []string) error {
		t.Fatalf("unexpected package installation of %v", packages)
		return nil
	}

	require.NoError(t, i.installContent(context.Background()))
	assert.NoFileExists(t, filepath.Join(i.Sysroot, i.TargetDir, "ssg-testos-ds.xml"))
}

func TestInstallContentRPM(t *testing.T) {
	data := policy.Data{
		ContentType: policy.TypeRPM,
		ContentURL:  "https://example.com/scap-content.rpm",
		ContentPath: "/usr/share/xml/scap/ssg-ds.xml",
	}
	i := newTestInstaller(t, data, "")
	require.NoError(t, os.WriteFile(filepath.Join(i.ContentDir, "scap-content.rpm"),
		[]byte("rpm payload"), 0644))

	var installed []string
	i.InstallPackages = func(sysroot string, packages []string) error {
		assert.Equal(t, i.Sysroot, sysroot)
		installed = append(installed, packages...)
		return nil
	}

	require.NoError(t, i.installContent(context.Background()))

	assert.FileExists(t, filepath.Join(i.Sysroot, i.TargetDir, "scap-content.rpm"))
	assert.Equal(t, []string{filepath.Join(i.TargetDir, "scap-content.rpm")}, installed)
}

func TestRemediateSystem(t *testing.T) {
	data := policy.Data{
		ContentType: policy.TypeDataStream,
		ContentURL:  "https://example.com/ssg-ds.xml",
		ProfileID:   "ospp",
	}
	i := newTestInstaller(t, data, "")

	var gotName string
	var gotArgs []string
	i.Launcher = oscap.NewWithRunner(func(name string, args ...string) (string, string, int, error) {
		gotName = name
		gotArgs = args
		return "", "", 0, nil
	})

	require.NoError(t, i.remediateSystem(context.Background()))

	assert.Equal(t, "chroot", gotName)
	require.NotEmpty(t, gotArgs)
	assert.Equal(t, i.Sysroot, gotArgs[0])
	assert.Contains(t, gotArgs, "--results="+filepath.Join(i.TargetDir, policy.ResultsName))
	assert.Contains(t, gotArgs, filepath.Join(i.TargetDir, "ssg-ds.xml"))
}

func TestRequirements(t *testing.T) {
	i := New(policy.Data{ContentType: policy.TypeDataStream}, "/mnt/sysroot")
	assert.Equal(t, []string{"openscap", "openscap-scanner"}, i.Requirements())

	i = New(policy.Data{ContentType: policy.TypeSSG}, "/mnt/sysroot")
	assert.Contains(t, i.Requirements(), "scap-security-guide")
}
