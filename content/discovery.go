package content

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/extract"
	"github.com/OpenSCAP/oscap-anaconda-addon/fetch"
	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
	"github.com/OpenSCAP/oscap-anaconda-addon/scap"
	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

var (
	ErrBusy                = errors.New("content retrieval already in progress")
	ErrInvalidURI          = errors.New("invalid content URI")
	ErrFingerprintMismatch = errors.New("integrity check of the fetched content failed")
)

// Discoverer fetches the configured content and catalogues what arrived.
type Discoverer struct {
	Fetcher    fetch.Fetcher
	ContentDir string

	// Identify determines the content type of a file. The default judges
	// by the XML root element.
	Identify func(path string) (scap.DocType, error)

	mu   sync.Mutex
	busy bool
}

func NewDiscoverer() *Discoverer {
	return &Discoverer{
		Fetcher:    fetch.NewFetcher(),
		ContentDir: utils.ContentDir(),
		Identify:   IdentifyFile,
	}
}

// IdentifyFile reports the content type of a SCAP file by its root element.
func IdentifyFile(path string) (scap.DocType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return scap.TypeUnknown, xerrors.Errorf("failed to read %s: %w", path, err)
	}
	return scap.Sniff(raw), nil
}

// ValidateURI checks that the content URL has a supported scheme and names
// an actual file.
func ValidateURI(url string) error {
	scheme, rest, found := strings.Cut(url, "://")
	if !found || scheme == "" {
		return xerrors.Errorf("'%s' has no scheme: %w", url, ErrInvalidURI)
	}
	if !fetch.CanFetchFrom(url) {
		return xerrors.Errorf("unsupported scheme '%s': %w", scheme, ErrInvalidURI)
	}
	base := filepath.Base(rest)
	if rest == "" || base == "." || base == "/" {
		return xerrors.Errorf("'%s' does not name a file: %w", url, ErrInvalidURI)
	}
	return nil
}

// VerifyFingerprint checks the file digest against the expected fingerprint.
// An empty fingerprint passes.
func VerifyFingerprint(path, fingerprint string) error {
	if fingerprint == "" {
		return nil
	}
	name, newHash, ok := utils.HashAlgorithm(fingerprint)
	if !ok {
		return xerrors.Errorf("unsupported fingerprint of length %d: %w",
			len(fingerprint), ErrFingerprintMismatch)
	}
	computed, err := utils.FileFingerprint(path, newHash)
	if err != nil {
		return xerrors.Errorf("failed to compute the %s digest of %s: %w", name, path, err)
	}
	if !strings.EqualFold(computed, fingerprint) {
		return xerrors.Errorf("%s digest of %s is %s, expected %s: %w",
			name, path, computed, fingerprint, ErrFingerprintMismatch)
	}
	log.Printf("%s digest of %s matches\n", name, path)
	return nil
}

// Discover fetches the content the policy configures, verifies and unpacks
// it and returns the inventory of the obtained files. Only one discovery
// may run at a time.
func (d *Discoverer) Discover(ctx context.Context, data policy.Data) (*Obtained, error) {
	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.busy = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	// the scap-security-guide content is already on disk, just label it
	if data.ContentType == policy.TypeSSG {
		obtained := NewObtained(filepath.Dir(data.ContentPath))
		label, err := d.Identify(data.ContentPath)
		if err != nil {
			return nil, err
		}
		if err := obtained.AddFile(data.ContentPath, label); err != nil {
			return nil, err
		}
		return obtained, nil
	}

	if err := ValidateURI(data.ContentURL); err != nil {
		return nil, err
	}

	// start from a clean slate, leftovers of a previous fetch would be
	// catalogued as content
	if err := os.RemoveAll(d.ContentDir); err != nil {
		return nil, xerrors.Errorf("failed to clear %s: %w", d.ContentDir, err)
	}
	if err := utils.EnsureDirExists(d.ContentDir); err != nil {
		return nil, err
	}

	dest := data.RawPreinstContentPath(d.ContentDir)
	if err := d.Fetcher.Fetch(ctx, data.ContentURL, dest, data.Certificates); err != nil {
		return nil, xerrors.Errorf("failed to fetch the content: %w", err)
	}
	if err := VerifyFingerprint(dest, data.Fingerprint); err != nil {
		return nil, err
	}

	if data.ContentType == policy.TypeArchive || data.ContentType == policy.TypeRPM {
		ensure := lo.Compact([]string{data.ContentPath, data.TailoringPath, data.CPEPath})
		if _, err := extract.Extract(dest, d.ContentDir, ensure); err != nil {
			return nil, xerrors.Errorf("failed to unpack the content: %w", err)
		}
	}

	return d.catalogue(d.ContentDir)
}

// catalogue walks the content directory and labels every recognized file.
func (d *Discoverer) catalogue(root string) (*Obtained, error) {
	obtained := NewObtained(root)

	err := afero.Walk(d.Fetcher.AppFs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		label, err := d.Identify(path)
		if err != nil {
			log.Printf("skipping %s: %v\n", path, err)
			return nil
		}
		if label == scap.TypeUnknown {
			return nil
		}
		return obtained.AddFile(path, label)
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to catalogue the content in %s: %w", root, err)
	}
	return obtained, nil
}
