package extract

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

// rpmToCpio converts an rpm package to a plain cpio archive on disk and
// returns its path. Replaced in tests.
var rpmToCpio = func(rpmPath string) (string, error) {
	if !utils.IsCommandAvailable("rpm2cpio") {
		return "", xerrors.New("the rpm2cpio tool is required to extract rpm packages")
	}

	out, err := os.CreateTemp("", "oscap-rpm-payload")
	if err != nil {
		return "", xerrors.Errorf("failed to create a temporary file: %w", err)
	}
	defer out.Close()

	payload, err := utils.Exec("rpm2cpio", []string{rpmPath})
	if err != nil {
		os.Remove(out.Name())
		return "", xerrors.Errorf("failed to convert %s to a cpio archive: %w", rpmPath, err)
	}
	if _, err := out.WriteString(payload); err != nil {
		os.Remove(out.Name())
		return "", xerrors.Errorf("failed to write the cpio archive: %w", err)
	}
	return out.Name(), nil
}

// normalizeMember turns a cpio member name like "./usr/share/file" into the
// absolute form used by the callers.
func normalizeMember(name string) string {
	return "/" + strings.TrimPrefix(strings.TrimPrefix(name, "."), "/")
}

// ExtractRPM unpacks the payload of an rpm package under the given root.
// ensureHasFiles lists paths (absolute or relative to root) that must be
// present in the package. Existing files are never overwritten. It returns
// the paths of the extracted entries.
func ExtractRPM(rpmPath, root string, ensureHasFiles []string) ([]string, error) {
	cpioPath, err := rpmToCpio(rpmPath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(cpioPath)

	members, err := listCpioMembers(cpioPath)
	if err != nil {
		return nil, err
	}
	for _, fpath := range lo.Compact(ensureHasFiles) {
		if !lo.Contains(members, normalizeMember(fpath)) {
			return nil, xerrors.Errorf("file '%s' not found in the archive '%s': %w",
				fpath, rpmPath, ErrMissingFile)
		}
	}

	f, err := os.Open(cpioPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to open the cpio archive: %w", err)
	}
	defer f.Close()

	var result []string
	cr := NewCpioReader(f)
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("failed to read the payload of %s: %w", rpmPath, err)
		}

		out := filepath.Join(root, normalizeMember(hdr.Name))
		result = append(result, out)

		if hdr.IsDir() || hdr.Size == 0 {
			continue
		}
		if exists, err := utils.Exists(out); err != nil {
			return nil, xerrors.Errorf("failed to stat %s: %w", out, err)
		} else if exists {
			log.Printf("not overwriting the existing file %s\n", out)
			continue
		}
		if err := writeCpioFile(cr, out); err != nil {
			return nil, err
		}
	}

	log.Printf("extracted %d entries from %s\n", len(result), rpmPath)
	return result, nil
}

func listCpioMembers(cpioPath string) ([]string, error) {
	f, err := os.Open(cpioPath)
	if err != nil {
		return nil, xerrors.Errorf("failed to open the cpio archive: %w", err)
	}
	defer f.Close()

	var members []string
	cr := NewCpioReader(f)
	for {
		hdr, err := cr.Next()
		if err == io.EOF {
			return members, nil
		}
		if err != nil {
			return nil, xerrors.Errorf("failed to read the cpio archive: %w", err)
		}
		members = append(members, normalizeMember(hdr.Name))
	}
}

func writeCpioFile(cr *CpioReader, path string) error {
	if err := utils.EnsureDirExists(filepath.Dir(path)); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, cr); err != nil {
		return xerrors.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
