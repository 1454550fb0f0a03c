package oscap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
)

type recordedRun struct {
	name string
	args []string
}

func fakeLauncher(stdout, stderr string, exitCode int) (*Launcher, *[]recordedRun) {
	var runs []recordedRun
	l := &Launcher{run: func(name string, args ...string) (string, string, int, error) {
		runs = append(runs, recordedRun{name: name, args: args})
		return stdout, stderr, exitCode, nil
	}}
	return l, &runs
}

func TestGenerateFix(t *testing.T) {
	l, runs := fakeLauncher("part /tmp --mountoptions=nodev\n", "", 0)

	data := policy.Data{
		ContentType:  policy.TypeDataStream,
		ProfileID:    "xccdf_org.ssgproject.content_profile_ospp",
		DataStreamID: "ds1",
		XCCDFID:      "xccdf1",
	}
	fixes, err := l.GenerateFix(data, "/tmp/openscap_data/ssg-ds.xml", "/tmp/openscap_data/tailoring.xml")
	require.NoError(t, err)
	assert.Equal(t, "part /tmp --mountoptions=nodev\n", fixes)

	require.Len(t, *runs, 1)
	assert.Equal(t, "oscap", (*runs)[0].name)
	assert.Equal(t, []string{
		"xccdf", "generate", "fix",
		"--template=urn:redhat:anaconda:pre",
		"--profile=xccdf_org.ssgproject.content_profile_ospp",
		"--datastream-id=ds1",
		"--xccdf-id=xccdf1",
		"--tailoring-file=/tmp/openscap_data/tailoring.xml",
		"/tmp/openscap_data/ssg-ds.xml",
	}, (*runs)[0].args)
}

func TestGenerateFixDefaultProfile(t *testing.T) {
	l, runs := fakeLauncher("", "", 0)

	_, err := l.GenerateFix(policy.Data{ProfileID: "default"}, "/tmp/ds.xml", "")
	require.NoError(t, err)

	require.Len(t, *runs, 1)
	assert.Equal(t, []string{
		"xccdf", "generate", "fix",
		"--template=urn:redhat:anaconda:pre",
		"/tmp/ds.xml",
	}, (*runs)[0].args)
}

func TestGenerateFixError(t *testing.T) {
	l, _ := fakeLauncher("", "OpenSCAP Error: Unable to open file\nnoise", 1)

	_, err := l.GenerateFix(policy.Data{ProfileID: "ospp"}, "/tmp/ds.xml", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenSCAP Error: Unable to open file")
	assert.NotContains(t, err.Error(), "noise")
}

func TestRemediate(t *testing.T) {
	l, runs := fakeLauncher("", "", 2)

	data := policy.Data{ProfileID: "ospp"}
	err := l.Remediate(data, "/root/openscap_data/ssg-ds.xml", "",
		"/root/openscap_data/eval_remediate_results.xml",
		"/root/openscap_data/eval_remediate_report.html", "/mnt/sysroot")
	require.NoError(t, err)

	require.Len(t, *runs, 1)
	assert.Equal(t, "chroot", (*runs)[0].name)
	assert.Equal(t, []string{
		"/mnt/sysroot", "oscap",
		"xccdf", "eval", "--remediate",
		"--results=/root/openscap_data/eval_remediate_results.xml",
		"--report=/root/openscap_data/eval_remediate_report.html",
		"--profile=ospp",
		"/root/openscap_data/ssg-ds.xml",
	}, (*runs)[0].args)
}

func TestRemediateNoChroot(t *testing.T) {
	l, runs := fakeLauncher("", "", 0)

	err := l.Remediate(policy.Data{ProfileID: "ospp"}, "/root/ds.xml", "",
		"/root/results.xml", "/root/report.html", "/")
	require.NoError(t, err)
	assert.Equal(t, "oscap", (*runs)[0].name)
}

func TestRemediateFailure(t *testing.T) {
	l, _ := fakeLauncher("", "E: oscap: Invalid profile", 1)

	err := l.Remediate(policy.Data{ProfileID: "ospp"}, "/root/ds.xml", "",
		"/root/results.xml", "/root/report.html", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 1")
	assert.Contains(t, err.Error(), "E: oscap: Invalid profile")
}

func TestDocType(t *testing.T) {
	l, _ := fakeLauncher("Document type: Source Data Stream\nImported: 2026-01-15\n", "", 0)
	assert.Equal(t, "Source Data Stream", l.DocType("/tmp/ds.xml"))

	l, _ = fakeLauncher("", "OpenSCAP Error: unrecognized file", 1)
	assert.Equal(t, "unknown", l.DocType("/tmp/random.xml"))

	l, _ = fakeLauncher("no type line here\n", "", 0)
	assert.Equal(t, "unknown", l.DocType("/tmp/random.xml"))
}

func TestExtractError(t *testing.T) {
	stderr := "some noise\nOpenSCAP Error: Unable to open file.\nmore noise\nE: oscap: bad id\n"
	assert.Equal(t, "OpenSCAP Error: Unable to open file.\nE: oscap: bad id", ExtractError(stderr))
	assert.Equal(t, "plain failure", ExtractError("plain failure\n"))
}
