// Package extract unpacks the archives the security content can arrive in:
// zip files, tarballs and RPM packages.
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	gzip "github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

var (
	ErrUnsupportedArchive = errors.New("unsupported archive type")
	ErrMissingFile        = errors.New("expected file not found in the archive")
)

// Extract unpacks the given archive to outDir. The archive type is deduced
// from the file name. ensureHasFiles lists relative paths that must exist in
// the archive, checked before anything is written out. It returns the paths
// of the extracted files and directories.
func Extract(archive, outDir string, ensureHasFiles []string) ([]string, error) {
	ensureHasFiles = lo.Compact(ensureHasFiles)

	log.Printf("extracting %s\n", archive)

	switch {
	case strings.HasSuffix(archive, ".zip"):
		return extractZip(archive, outDir, ensureHasFiles)
	case strings.HasSuffix(archive, ".tar"):
		return extractTarball(archive, outDir, ensureHasFiles, "")
	case strings.HasSuffix(archive, ".tar.gz"):
		return extractTarball(archive, outDir, ensureHasFiles, "gz")
	case strings.HasSuffix(archive, ".tar.bz2"):
		return extractTarball(archive, outDir, ensureHasFiles, "bz2")
	case strings.HasSuffix(archive, ".rpm"):
		return ExtractRPM(archive, outDir, ensureHasFiles)
	default:
		return nil, xerrors.Errorf("%s: %w", archive, ErrUnsupportedArchive)
	}
}

// securePath joins a member name to the output directory, refusing names
// that would escape it.
func securePath(outDir, name string) (string, error) {
	path := filepath.Join(outDir, name)
	if !strings.HasPrefix(path, filepath.Clean(outDir)+string(os.PathSeparator)) {
		return "", xerrors.Errorf("illegal file path %s in the archive", name)
	}
	return path, nil
}

func checkHasFiles(archive string, files []string, ensureHasFiles []string) error {
	for _, fpath := range ensureHasFiles {
		if !lo.Contains(files, fpath) {
			return xerrors.Errorf("file '%s' not found in the archive '%s': %w",
				fpath, archive, ErrMissingFile)
		}
	}
	return nil
}

func extractZip(archive, outDir string, ensureHasFiles []string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, xerrors.Errorf("error extracting archive as a zipfile: %w", err)
	}
	defer zr.Close()

	var files []string
	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, "/") {
			files = append(files, zf.Name)
		}
	}
	if err := checkHasFiles(archive, files, ensureHasFiles); err != nil {
		return nil, err
	}

	if err := utils.EnsureDirExists(outDir); err != nil {
		return nil, err
	}

	var result []string
	bar := pb.StartNew(len(zr.File))
	for _, zf := range zr.File {
		path, err := securePath(outDir, zf.Name)
		if err != nil {
			return nil, err
		}
		if strings.HasSuffix(zf.Name, "/") {
			if err := utils.EnsureDirExists(path); err != nil {
				return nil, err
			}
		} else if err := writeZipFile(zf, path); err != nil {
			return nil, err
		}
		result = append(result, path)
		bar.Increment()
	}
	bar.Finish()

	log.Printf("extracted %d entries from %s\n", len(result), archive)
	return result, nil
}

func writeZipFile(zf *zip.File, path string) error {
	if err := utils.EnsureDirExists(filepath.Dir(path)); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return xerrors.Errorf("failed to open %s in the archive: %w", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return xerrors.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func openTarball(archive, alg string) (io.ReadCloser, *tar.Reader, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to open %s: %w", archive, err)
	}

	switch alg {
	case "":
		return f, tar.NewReader(f), nil
	case "gz":
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, xerrors.Errorf("failed to read %s as gzip: %w", archive, err)
		}
		return f, tar.NewReader(gzr), nil
	case "bz2":
		return f, tar.NewReader(bzip2.NewReader(f)), nil
	default:
		f.Close()
		return nil, nil, xerrors.Errorf("unsupported compression algorithm %s: %w", alg, ErrUnsupportedArchive)
	}
}

func extractTarball(archive, outDir string, ensureHasFiles []string, alg string) ([]string, error) {
	// first pass collects member names for the sanity check
	closer, tr, err := openTarball(archive, alg)
	if err != nil {
		return nil, err
	}
	var files, members []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			closer.Close()
			return nil, xerrors.Errorf("failed to read the tar archive %s: %w", archive, err)
		}
		members = append(members, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			files = append(files, hdr.Name)
		}
	}
	closer.Close()

	if err := checkHasFiles(archive, files, ensureHasFiles); err != nil {
		return nil, err
	}
	if err := utils.EnsureDirExists(outDir); err != nil {
		return nil, err
	}

	// second pass writes the members out
	closer, tr, err = openTarball(archive, alg)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var result []string
	bar := pb.StartNew(len(members))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("failed to read the tar archive %s: %w", archive, err)
		}
		path, err := securePath(outDir, hdr.Name)
		if err != nil {
			return nil, err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := utils.EnsureDirExists(path); err != nil {
				return nil, err
			}
		case tar.TypeReg:
			if err := utils.EnsureDirExists(filepath.Dir(path)); err != nil {
				return nil, err
			}
			out, err := os.Create(path)
			if err != nil {
				return nil, xerrors.Errorf("failed to create %s: %w", path, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return nil, xerrors.Errorf("failed to write %s: %w", path, err)
			}
			out.Close()
		}
		result = append(result, path)
		bar.Increment()
	}
	bar.Finish()

	log.Printf("extracted %d entries from %s\n", len(result), archive)
	return result, nil
}
