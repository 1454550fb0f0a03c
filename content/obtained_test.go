package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenSCAP/oscap-anaconda-addon/scap"
)

func TestObtainedAddFile(t *testing.T) {
	o := NewObtained("/tmp/openscap_data")

	require.NoError(t, o.AddFile("/tmp/openscap_data/ssg-ds.xml", scap.TypeDataStream))
	require.NoError(t, o.AddFile("/tmp/openscap_data/oval1.xml", scap.TypeOVAL))
	require.NoError(t, o.AddFile("/tmp/openscap_data/oval2.xml", scap.TypeOVAL))

	// re-adding the same file is not a conflict
	require.NoError(t, o.AddFile("/tmp/openscap_data/ssg-ds.xml", scap.TypeDataStream))

	err := o.AddFile("/tmp/openscap_data/other-ds.xml", scap.TypeDataStream)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateContent)

	assert.Len(t, o.Labels(), 3)
}

func TestSelectMainUsableContent(t *testing.T) {
	o := NewObtained("/tmp/openscap_data")
	_, err := o.SelectMainUsableContent()
	assert.ErrorIs(t, err, ErrNoUsableContent)

	// an XCCDF checklist without an OVAL file cannot be evaluated
	require.NoError(t, o.AddFile("/tmp/openscap_data/xccdf.xml", scap.TypeXCCDF))
	_, err = o.SelectMainUsableContent()
	assert.ErrorIs(t, err, ErrNoUsableContent)

	require.NoError(t, o.AddFile("/tmp/openscap_data/oval.xml", scap.TypeOVAL))
	path, err := o.SelectMainUsableContent()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/xccdf.xml", path)

	// a data stream wins over an XCCDF-OVAL tuple
	require.NoError(t, o.AddFile("/tmp/openscap_data/ssg-ds.xml", scap.TypeDataStream))
	path, err = o.SelectMainUsableContent()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/ssg-ds.xml", path)
}

func TestFindExpectedUsableContent(t *testing.T) {
	o := NewObtained("/tmp/openscap_data")
	require.NoError(t, o.AddFile("/tmp/openscap_data/content/ssg-ds.xml", scap.TypeDataStream))
	require.NoError(t, o.AddFile("/tmp/openscap_data/content/oval.xml", scap.TypeOVAL))

	path, err := o.FindExpectedUsableContent("content/ssg-ds.xml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/content/ssg-ds.xml", path)

	_, err = o.FindExpectedUsableContent("content/oval.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an evaluatable")

	_, err = o.FindExpectedUsableContent("content/missing.xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoUsableContent)

	// the path is resolved against the content root, an equal base name in
	// another directory does not match
	_, err = o.FindExpectedUsableContent("other/ssg-ds.xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoUsableContent)
}

func TestFindExpectedUsableContentXCCDFNeedsOVAL(t *testing.T) {
	o := NewObtained("/tmp/openscap_data")
	require.NoError(t, o.AddFile("/tmp/openscap_data/xccdf.xml", scap.TypeXCCDF))

	_, err := o.FindExpectedUsableContent("xccdf.xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoUsableContent)

	require.NoError(t, o.AddFile("/tmp/openscap_data/oval.xml", scap.TypeOVAL))
	path, err := o.FindExpectedUsableContent("xccdf.xml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/xccdf.xml", path)
}

func TestPreferredContent(t *testing.T) {
	o := NewObtained("/tmp/openscap_data")
	require.NoError(t, o.AddFile("/tmp/openscap_data/ssg-ds.xml", scap.TypeDataStream))

	path, err := o.PreferredContent("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/ssg-ds.xml", path)

	path, err = o.PreferredContent("ssg-ds.xml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/ssg-ds.xml", path)
}

func TestPreferredTailoring(t *testing.T) {
	o := NewObtained("/tmp/openscap_data")

	path, err := o.PreferredTailoring("")
	require.NoError(t, err)
	assert.Empty(t, path)

	_, err = o.PreferredTailoring("tailoring.xml")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoUsableContent)

	require.NoError(t, o.AddFile("/tmp/openscap_data/tailoring.xml", scap.TypeTailoring))

	path, err = o.PreferredTailoring("tailoring.xml")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/openscap_data/tailoring.xml", path)

	// resolved against the content root, a matching base name in another
	// directory is not the expected file
	_, err = o.PreferredTailoring("content/tailoring.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected tailoring file")

	_, err = o.PreferredTailoring("other-tailoring.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected tailoring file")
}
