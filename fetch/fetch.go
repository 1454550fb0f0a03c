// Package fetch downloads security content referred by http, https, ftp and
// file URLs. For https, the server certificate can be validated against a
// supplied CA bundle.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/parnurzeal/gorequest"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

var (
	// NetURLPrefixes are schemes of the URLs that need a network connection.
	NetURLPrefixes = []string{"http", "https", "ftp"}

	// LocalURLPrefixes are schemes of the URLs that may not need one.
	LocalURLPrefixes = []string{"file"}

	httpURLRegexp = regexp.MustCompile(`^(https?)://(.*)$`)
	ftpURLRegexp  = regexp.MustCompile(`^(ftp)://(.*)$`)
	fileURLRegexp = regexp.MustCompile(`^(file)://(.*)$`)
)

var (
	ErrUnknownURLFormat = errors.New("unknown URL format")
	ErrWrongRequest     = errors.New("wrong combination of fetch parameters")
	ErrCertValidation   = errors.New("server certificate validation failed")
)

const defaultRetry = 5

type Fetcher struct {
	// Retry is the number of extra attempts for network fetches.
	Retry int

	// Insecure disables server certificate validation. It mirrors the
	// installer's noverifyssl boot option.
	Insecure bool

	AppFs afero.Fs
}

func NewFetcher() Fetcher {
	return Fetcher{
		Retry: defaultRetry,
		AppFs: afero.NewOsFs(),
	}
}

// IsNetwork tells whether the given URL scheme requires a network connection.
func IsNetwork(scheme string) bool {
	return lo.SomeBy(NetURLPrefixes, func(prefix string) bool {
		return strings.HasPrefix(scheme, prefix)
	})
}

// CanFetchFrom tells whether the type of the given URL is supported.
func CanFetchFrom(url string) bool {
	prefixes := append(append([]string{}, NetURLPrefixes...), LocalURLPrefixes...)
	return lo.SomeBy(prefixes, func(prefix string) bool {
		return strings.HasPrefix(url, prefix)
	})
}

// Fetch downloads the data from the given URL to outFile. caCertsPath may be
// a path to a PEM file with a CA certificate chain used to validate the
// server certificate of an https URL.
func (f Fetcher) Fetch(ctx context.Context, url, outFile, caCertsPath string) error {
	if outFile == "" {
		return xerrors.Errorf("output file cannot be an empty string: %w", ErrWrongRequest)
	}
	if err := utils.EnsureDirExists(filepath.Dir(outFile)); err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(url, "ftp"):
		match := ftpURLRegexp.FindStringSubmatch(url)
		if match == nil {
			return xerrors.Errorf("wrong url not matching %s: %w", ftpURLRegexp, ErrWrongRequest)
		}
		if caCertsPath != "" {
			return xerrors.Errorf("cannot verify server certificate over ftp: %w", ErrWrongRequest)
		}
		return f.fetchFTP(ctx, AnonymousFTPURL(url), outFile)
	case strings.HasPrefix(url, "file"):
		match := fileURLRegexp.FindStringSubmatch(url)
		if match == nil {
			return xerrors.Errorf("wrong url not matching %s: %w", fileURLRegexp, ErrWrongRequest)
		}
		return f.fetchLocal(ctx, match[2], outFile)
	case httpURLRegexp.MatchString(url):
		protocol := httpURLRegexp.FindStringSubmatch(url)[1]
		if caCertsPath != "" && protocol != "https" {
			return xerrors.Errorf("cannot verify server certificate when using plain HTTP: %w", ErrWrongRequest)
		}
		return f.fetchHTTP(url, outFile, caCertsPath)
	default:
		return xerrors.Errorf("cannot fetch data from '%s': %w", url, ErrUnknownURLFormat)
	}
}

// AnonymousFTPURL adds the anonymous login to ftp URLs without credentials.
func AnonymousFTPURL(url string) string {
	match := ftpURLRegexp.FindStringSubmatch(url)
	if match == nil {
		return url
	}
	protocol, path := match[1], match[2]
	if strings.Contains(path, "@") {
		return url
	}
	return protocol + "://anonymous:@" + path
}

func (f Fetcher) fetchHTTP(url, outFile, caCertsPath string) error {
	var body []byte
	var err error
	for i := 0; i <= f.Retry; i++ {
		if i > 0 {
			wait := math.Pow(float64(i), 2) + float64(utils.RandInt()%10)
			log.Printf("retry after %f seconds\n", wait)
			time.Sleep(time.Duration(wait) * time.Second)
		}
		body, err = f.fetchHTTPOnce(url, caCertsPath)
		if err == nil {
			break
		}
		if errors.Is(err, ErrCertValidation) {
			return err
		}
	}
	if err != nil {
		return xerrors.Errorf("failed to fetch URL: %w", err)
	}

	fs := utils.NewFs(f.AppFs)
	if err := fs.WriteBytes(outFile, body); err != nil {
		return xerrors.Errorf("failed to write %s: %w", outFile, err)
	}
	log.Printf("data fetch from %s completed\n", url)
	return nil
}

func (f Fetcher) fetchHTTPOnce(url, caCertsPath string) ([]byte, error) {
	tlsConfig := &tls.Config{}
	if caCertsPath != "" {
		pem, err := os.ReadFile(caCertsPath)
		if err != nil {
			return nil, xerrors.Errorf("unable to read the CA bundle %s: %w", caCertsPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, xerrors.Errorf("no usable certificates in %s: %w", caCertsPath, ErrCertValidation)
		}
		tlsConfig.RootCAs = pool
	}
	if f.Insecure {
		log.Println("disabling SSL verification due to the noverifyssl flag")
		tlsConfig.InsecureSkipVerify = true
	}

	resp, body, errs := gorequest.New().TLSClientConfig(tlsConfig).Get(url).Type("text").EndBytes()
	if len(errs) > 0 {
		var certErr *tls.CertificateVerificationError
		if errors.As(errs[0], &certErr) {
			return nil, xerrors.Errorf("failed to connect to server and validate its certificate: %v: %w",
				errs[0], ErrCertValidation)
		}
		return nil, xerrors.Errorf("HTTP error. url: %s, err: %w", url, errs[0])
	}
	if resp.StatusCode >= 400 {
		return nil, xerrors.Errorf("HTTP error. status code: %d, url: %s", resp.StatusCode, url)
	}
	return body, nil
}

func (f Fetcher) fetchLocal(ctx context.Context, path, outFile string) error {
	exists, err := utils.Exists(path)
	if err != nil {
		return xerrors.Errorf("failed to stat %s: %w", path, err)
	}
	if !exists {
		return xerrors.Errorf("local content %s not found", path)
	}
	if err := utils.DownloadToFile(ctx, path, outFile); err != nil {
		return xerrors.Errorf("failed to fetch local data: %w", err)
	}
	log.Printf("data fetch from file://%s completed\n", path)
	return nil
}

func (f Fetcher) fetchFTP(ctx context.Context, url, outFile string) error {
	// go-getter has no ftp getter, the installer environment ships curl
	if !utils.IsCommandAvailable("curl") {
		return xerrors.New("the curl tool is required to fetch ftp URLs")
	}
	if _, err := utils.Exec("curl", []string{"--silent", "--show-error", "--output", outFile, url}); err != nil {
		return xerrors.Errorf("failed to fetch %s: %w", url, err)
	}
	log.Printf("data fetch from %s completed\n", url)
	return nil
}
