package policy

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

// Supported values of the content-type field.
const (
	TypeDataStream = "datastream"
	TypeArchive    = "archive"
	TypeRPM        = "rpm"
	TypeSSG        = "scap-security-guide"
)

const (
	// PreInstallFixSystem is the value of the fix elements' system attribute
	// that marks rules applicable in the pre-installation environment.
	PreInstallFixSystem = "urn:redhat:anaconda:pre"

	ResultsName = "eval_remediate_results.xml"
	ReportName  = "eval_remediate_report.html"
)

var (
	SupportedContentTypes = []string{TypeDataStream, TypeArchive, TypeRPM, TypeSSG}
	SupportedURLPrefixes  = []string{"http://", "https://", "ftp://", "file://"}
	SupportedArchives     = []string{".zip", ".tar", ".tar.gz", ".tar.bz2"}
)

// Data holds the security policy configuration, typically coming from the
// %addon section of a kickstart file.
type Data struct {
	ContentType   string
	ContentURL    string
	DataStreamID  string
	XCCDFID       string
	ProfileID     string
	ContentPath   string
	CPEPath       string
	TailoringPath string
	Fingerprint   string
	Certificates  string
}

func SupportedContentType(value string) bool {
	return lo.Contains(SupportedContentTypes, strings.ToLower(value))
}

func SupportedURL(url string) bool {
	return lo.SomeBy(SupportedURLPrefixes, func(prefix string) bool {
		return strings.HasPrefix(url, prefix)
	})
}

func SupportedArchive(url string) bool {
	return lo.SomeBy(SupportedArchives, func(suffix string) bool {
		return strings.HasSuffix(url, suffix)
	})
}

// Validate checks the policy for completeness and fills in the defaults.
// ssgPath is the path to the data stream shipped by the scap-security-guide
// package, used when the content type selects it.
func (d *Data) Validate(ssgPath string) error {
	if d.ContentType == "" {
		return xerrors.New("content-type missing for the security policy")
	}

	if d.ContentType != TypeSSG && d.ContentURL == "" {
		return xerrors.New("content-url missing for the security policy")
	}

	if d.ProfileID == "" {
		d.ProfileID = "default"
	}

	switch d.ContentType {
	case TypeRPM:
		if d.ContentPath == "" {
			return xerrors.New("content-path has to be given if content in RPM is used")
		}
		if !strings.HasSuffix(d.ContentURL, ".rpm") {
			return xerrors.New("content type set to RPM, but the content URL doesn't end with '.rpm'")
		}
	case TypeArchive:
		if d.ContentPath == "" {
			return xerrors.New("content-path has to be given if content in archive is used")
		}
		if !SupportedArchive(d.ContentURL) {
			return xerrors.Errorf("unsupported archive type of the content file %s", d.ContentURL)
		}
	case TypeSSG:
		exists, _ := utils.Exists(ssgPath)
		if !exists {
			return xerrors.New("SCAP Security Guide not found on the system")
		}
		d.ContentPath = ssgPath
	}

	return nil
}

// ContentName returns the base name of the file referred by the content URL.
func (d Data) ContentName() (string, error) {
	if d.ContentType == TypeSSG {
		return "", xerrors.New("scap-security-guide has no content file name")
	}
	name := path.Base(d.ContentURL)
	if name == "." || name == "/" || name == "" {
		return "", xerrors.Errorf("unable to deduce the content name from %s", d.ContentURL)
	}
	return name, nil
}

// RawPreinstContentPath returns the path to the file the content URL is
// fetched to, before any extraction happens.
func (d Data) RawPreinstContentPath(contentDir string) string {
	name, err := d.ContentName()
	if err != nil {
		return ""
	}
	return filepath.Join(contentDir, name)
}

// PreinstContentPath returns the path to the content file used for the
// pre-installation evaluation.
func (d Data) PreinstContentPath(contentDir string) string {
	switch d.ContentType {
	case TypeSSG:
		return d.ContentPath
	case TypeDataStream:
		return d.RawPreinstContentPath(contentDir)
	default:
		return filepath.Join(contentDir, d.ContentPath)
	}
}

func (d Data) PreinstTailoringPath(contentDir string) string {
	if d.TailoringPath == "" {
		return ""
	}
	return filepath.Join(contentDir, d.TailoringPath)
}

// PostinstContentPath returns the path to the content file on the installed
// system.
func (d Data) PostinstContentPath(targetDir string) string {
	switch d.ContentType {
	case TypeSSG:
		return d.ContentPath
	case TypeDataStream, TypeRPM:
		name, err := d.ContentName()
		if err != nil {
			return ""
		}
		return filepath.Join(targetDir, name)
	default:
		return filepath.Join(targetDir, d.ContentPath)
	}
}

func (d Data) PostinstTailoringPath(targetDir string) string {
	if d.TailoringPath == "" {
		return ""
	}
	return filepath.Join(targetDir, filepath.Base(d.TailoringPath))
}

func (d Data) ResultsPath(targetDir string) string {
	return filepath.Join(targetDir, ResultsName)
}

func (d Data) ReportPath(targetDir string) string {
	return filepath.Join(targetDir, ReportName)
}
