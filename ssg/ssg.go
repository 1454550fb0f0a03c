// Package ssg locates the SCAP Security Guide content on the system and can
// refresh it from the upstream ComplianceAsCode releases.
package ssg

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/shurcooL/githubv4"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

const (
	// DefaultDir is where the scap-security-guide package installs its
	// data streams.
	DefaultDir = "/usr/share/xml/scap/ssg/content"

	upstreamOwner = "ComplianceAsCode"
	upstreamRepo  = "content"
)

// DataStreamPath returns the path of the data stream for the given product,
// e.g. "fedora" or "rhel9".
func DataStreamPath(dir, product string) string {
	return filepath.Join(dir, "ssg-"+product+"-ds.xml")
}

// Available tells whether a data stream exists at the given path.
func Available(path string) bool {
	exists, err := utils.Exists(path)
	return err == nil && exists
}

type GithubClient interface {
	Query(ctx context.Context, q interface{}, variables map[string]interface{}) error
}

type releaseAsset struct {
	Name        githubv4.String
	DownloadURL githubv4.URI `graphql:"downloadUrl"`
}

type releaseNode struct {
	TagName       githubv4.String
	ReleaseAssets struct {
		Nodes []releaseAsset
	} `graphql:"releaseAssets(first: $assetCount)"`
}

type releasesQuery struct {
	Repository struct {
		Releases struct {
			Nodes []releaseNode
		} `graphql:"releases(first: 1, orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// Updater refreshes the local data streams from the latest upstream
// release.
type Updater struct {
	Dir    string
	AppFs  afero.Fs
	Client GithubClient

	download func(ctx context.Context, url string) (string, error)
}

func NewUpdater(ctx context.Context) *Updater {
	httpClient := oauth2.NewClient(ctx, nil)
	if token := utils.LookupEnv("GITHUB_TOKEN", ""); token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(ctx, src)
	}
	return &Updater{
		Dir:      DefaultDir,
		AppFs:    afero.NewOsFs(),
		Client:   githubv4.NewClient(httpClient),
		download: utils.DownloadToTempDir,
	}
}

// LatestRelease looks up the newest upstream release and the download URL
// of its content archive.
func (u *Updater) LatestRelease(ctx context.Context) (string, string, error) {
	var query releasesQuery
	variables := map[string]interface{}{
		"owner":      githubv4.String(upstreamOwner),
		"name":       githubv4.String(upstreamRepo),
		"assetCount": githubv4.Int(20),
	}
	if err := u.Client.Query(ctx, &query, variables); err != nil {
		return "", "", xerrors.Errorf("failed to query the %s/%s releases: %w",
			upstreamOwner, upstreamRepo, err)
	}

	releases := query.Repository.Releases.Nodes
	if len(releases) == 0 {
		return "", "", xerrors.New("no upstream release found")
	}

	tag := string(releases[0].TagName)
	for _, asset := range releases[0].ReleaseAssets.Nodes {
		name := string(asset.Name)
		if strings.HasPrefix(name, "scap-security-guide-") && strings.HasSuffix(name, ".zip") &&
			!strings.Contains(name, "-oval-") {
			return tag, asset.DownloadURL.String(), nil
		}
	}
	return "", "", xerrors.Errorf("release %s carries no content archive", tag)
}

// Update downloads the latest release and replaces the data streams under
// Dir with the shipped ones.
func (u *Updater) Update(ctx context.Context) error {
	tag, url, err := u.LatestRelease(ctx)
	if err != nil {
		return err
	}
	log.Printf("updating the SCAP Security Guide content to %s\n", tag)

	dir, err := u.download(ctx, url)
	if err != nil {
		return xerrors.Errorf("failed to download the release archive: %w", err)
	}
	defer os.RemoveAll(dir)

	var streams []string
	err = afero.Walk(u.AppFs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, "-ds.xml") {
			streams = append(streams, path)
		}
		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to scan the downloaded release: %w", err)
	}
	if len(streams) == 0 {
		return xerrors.Errorf("no data streams found in the %s release archive", tag)
	}

	if err := utils.EnsureDirExists(u.Dir); err != nil {
		return err
	}

	bar := pb.StartNew(len(streams))
	for _, stream := range streams {
		dst := filepath.Join(u.Dir, filepath.Base(stream))
		if err := utils.CopyFile(stream, dst); err != nil {
			return err
		}
		bar.Increment()
	}
	bar.Finish()

	log.Printf("installed %d data streams to %s\n", len(streams), u.Dir)
	return nil
}
