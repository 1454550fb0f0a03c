package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/config"
	"github.com/OpenSCAP/oscap-anaconda-addon/content"
	"github.com/OpenSCAP/oscap-anaconda-addon/install"
	"github.com/OpenSCAP/oscap-anaconda-addon/kickstart"
	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
	"github.com/OpenSCAP/oscap-anaconda-addon/scap"
	"github.com/OpenSCAP/oscap-anaconda-addon/ssg"
)

var (
	target     = flag.String("target", "", "action to run (kickstart, fetch, profiles, preinstall, install, remediate, ssg-update)")
	ksPath     = flag.String("kickstart", "", "path to the kickstart file with the %addon section")
	sysroot    = flag.String("sysroot", "/mnt/sysroot", "root of the installed system")
	configPath = flag.String("config", config.DefaultPath, "path to the configuration file")
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.Load(afero.NewOsFs(), *configPath)
	if err != nil {
		return err
	}

	switch *target {
	case "kickstart":
		data, err := loadPolicy(cfg)
		if err != nil {
			return err
		}
		fmt.Print(kickstart.Write(data))
	case "fetch":
		data, err := loadPolicy(cfg)
		if err != nil {
			return err
		}
		obtained, err := newDiscoverer(cfg).Discover(ctx, data)
		if err != nil {
			return xerrors.Errorf("error in content discovery: %w", err)
		}
		for path, label := range obtained.Labels() {
			fmt.Printf("%s\t%s\n", label, path)
		}
	case "profiles":
		data, err := loadPolicy(cfg)
		if err != nil {
			return err
		}
		if err := listProfiles(ctx, cfg, data); err != nil {
			return xerrors.Errorf("error in profile listing: %w", err)
		}
	case "preinstall":
		installer, err := newInstaller(cfg)
		if err != nil {
			return err
		}
		if err := install.RunTasks(ctx, installer.ConfigurationTasks()); err != nil {
			return xerrors.Errorf("error in the pre-installation steps: %w", err)
		}
	case "install":
		installer, err := newInstaller(cfg)
		if err != nil {
			return err
		}
		if err := install.RunTasks(ctx, installer.InstallationTasks()); err != nil {
			return xerrors.Errorf("error in the installation steps: %w", err)
		}
	case "remediate":
		installer, err := newInstaller(cfg)
		if err != nil {
			return err
		}
		tasks := installer.InstallationTasks()
		if err := install.RunTasks(ctx, tasks[len(tasks)-1:]); err != nil {
			return xerrors.Errorf("error in the remediation: %w", err)
		}
	case "ssg-update":
		updater := ssg.NewUpdater(ctx)
		updater.Dir = cfg.SSGDir
		if err := updater.Update(ctx); err != nil {
			return xerrors.Errorf("error in SCAP Security Guide update: %w", err)
		}
	default:
		return xerrors.New("unknown target")
	}

	return nil
}

func loadPolicy(cfg config.Config) (policy.Data, error) {
	if *ksPath == "" {
		return policy.Data{}, xerrors.New("a kickstart file must be given")
	}
	f, err := os.Open(*ksPath)
	if err != nil {
		return policy.Data{}, xerrors.Errorf("failed to open the kickstart: %w", err)
	}
	defer f.Close()

	result, err := kickstart.Parse(f, cfg.SSGPath())
	if err != nil {
		return policy.Data{}, err
	}
	if !result.Found {
		return policy.Data{}, xerrors.Errorf("no oscap addon section found in %s", *ksPath)
	}
	for _, warning := range result.Warnings {
		log.Printf("warning: %s\n", warning)
	}
	return result.Data, nil
}

func newDiscoverer(cfg config.Config) *content.Discoverer {
	d := content.NewDiscoverer()
	d.ContentDir = cfg.ContentDir
	d.Fetcher.Retry = cfg.FetchRetry
	d.Fetcher.Insecure = cfg.Insecure
	return d
}

func newInstaller(cfg config.Config) (*install.Installer, error) {
	data, err := loadPolicy(cfg)
	if err != nil {
		return nil, err
	}
	installer := install.New(data, *sysroot)
	installer.ContentDir = cfg.ContentDir
	installer.TargetDir = cfg.TargetDir
	installer.Discoverer = newDiscoverer(cfg)
	log.Printf("required packages: %v\n", installer.Requirements())
	return installer, nil
}

func listProfiles(ctx context.Context, cfg config.Config, data policy.Data) error {
	obtained, err := newDiscoverer(cfg).Discover(ctx, data)
	if err != nil {
		return err
	}
	contentPath, err := obtained.PreferredContent(data.ContentPath)
	if err != nil {
		return err
	}

	doc, err := scap.Load(contentPath)
	if err != nil {
		return err
	}
	if status, date, ok := doc.Status(); ok {
		fmt.Printf("benchmark status: %s (%s)\n", status, date.Format("2006-01-02"))
	}

	dsID, xccdfID := data.DataStreamID, data.XCCDFID
	if doc.Type() == scap.TypeDataStream {
		dsID, xccdfID, err = doc.SelectChecklist(dsID, xccdfID)
		if err != nil {
			return err
		}
	}
	profiles, err := doc.Profiles(dsID, xccdfID)
	if err != nil {
		return err
	}

	tailoringPath, err := obtained.PreferredTailoring(data.TailoringPath)
	if err != nil {
		return err
	}
	if tailoringPath != "" {
		tailoring, err := scap.Load(tailoringPath)
		if err != nil {
			return err
		}
		tailored, err := tailoring.TailoringProfiles()
		if err != nil {
			return err
		}
		profiles = append(profiles, tailored...)
	}

	for _, profile := range profiles {
		fmt.Printf("%s\n    %s\n", profile.ID, profile.Title)
		if profile.Description != "" {
			fmt.Printf("    %s\n", profile.Description)
		}
	}
	return nil
}
