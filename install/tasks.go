// Package install runs the configuration and installation steps of the
// security policy: fetching the content, evaluating the rules, installing
// the content to the target system and remediating it.
package install

import (
	"context"
	"errors"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/content"
	"github.com/OpenSCAP/oscap-anaconda-addon/oscap"
	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
	"github.com/OpenSCAP/oscap-anaconda-addon/rules"
	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

// MessagesName is the file the rule evaluation messages are stored under in
// the content directory.
const MessagesName = "eval_messages.json"

// ErrFatalFindings aborts the installation, the configuration violates the
// selected policy in a way that cannot be fixed automatically.
var ErrFatalFindings = errors.New("the selected security policy cannot be applied to this setup")

// Task is a single named step of the installation.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunTasks executes the tasks in order and stops at the first failure.
func RunTasks(ctx context.Context, tasks []Task) error {
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Printf("running task: %s\n", task.Name)
		if err := task.Run(ctx); err != nil {
			return xerrors.Errorf("task %s failed: %w", task.Name, err)
		}
	}
	return nil
}

// installPackagesFunc installs packages into the system under sysroot.
type installPackagesFunc func(sysroot string, packages []string) error

// yumInstall is the default package installer for the target system. The
// package paths are relative to the sysroot.
func yumInstall(sysroot string, packages []string) error {
	args := []string{sysroot, "yum", "-y", "--nogpg", "install"}
	args = append(args, packages...)
	if _, err := utils.Exec("chroot", args); err != nil {
		return xerrors.Errorf("failed to install %v into %s: %w", packages, sysroot, err)
	}
	return nil
}

// Installer wires the policy to the steps applying it.
type Installer struct {
	Policy  policy.Data
	Sysroot string

	ContentDir string
	TargetDir  string

	Discoverer      *content.Discoverer
	Launcher        *oscap.Launcher
	State           *rules.State
	Fs              utils.Fs
	InstallPackages installPackagesFunc

	contentPath   string
	tailoringPath string
	ruleData      *rules.Data
	messages      []rules.Message
}

func New(data policy.Data, sysroot string) *Installer {
	return &Installer{
		Policy:          data,
		Sysroot:         sysroot,
		ContentDir:      utils.ContentDir(),
		TargetDir:       utils.TargetContentDir(),
		Discoverer:      content.NewDiscoverer(),
		Launcher:        oscap.New(),
		State:           rules.NewState(),
		Fs:              utils.NewFs(afero.NewOsFs()),
		InstallPackages: yumInstall,
		ruleData:        rules.New(),
	}
}

// Requirements lists the packages the applied policy needs on the installed
// system.
func (i *Installer) Requirements() []string {
	packages := []string{"openscap", "openscap-scanner"}
	if i.Policy.ContentType == policy.TypeSSG {
		packages = append(packages, "scap-security-guide")
	}
	return packages
}

// Messages returns the findings of the last rule evaluation.
func (i *Installer) Messages() []rules.Message {
	return i.messages
}

// ConfigurationTasks are the steps run while the installation is being
// configured, before any change to the target disks.
func (i *Installer) ConfigurationTasks() []Task {
	return []Task{
		{Name: "fetch the security content", Run: i.fetchContent},
		{Name: "evaluate the policy rules", Run: i.evaluateRules},
	}
}

// InstallationTasks are the steps run once the target system is in place.
func (i *Installer) InstallationTasks() []Task {
	return []Task{
		{Name: "install the security content", Run: i.installContent},
		{Name: "remediate the installed system", Run: i.remediateSystem},
	}
}

// fetchContent obtains the configured content and resolves which files the
// later steps work with. The fetched file is checked against the configured
// fingerprint before it is used. Content fetched by an earlier attempt is
// reused instead of downloading it again.
func (i *Installer) fetchContent(ctx context.Context) error {
	i.Discoverer.ContentDir = i.ContentDir

	for _, path := range []string{
		i.Policy.PreinstContentPath(i.ContentDir),
		i.Policy.RawPreinstContentPath(i.ContentDir),
	} {
		exists, _ := utils.Exists(path)
		if path == "" || !exists {
			continue
		}
		log.Printf("content already available at %s, skipping the fetch\n", path)
		i.contentPath = i.Policy.PreinstContentPath(i.ContentDir)
		i.tailoringPath = i.Policy.PreinstTailoringPath(i.ContentDir)
		return nil
	}

	obtained, err := i.Discoverer.Discover(ctx, i.Policy)
	if err != nil {
		return err
	}

	i.contentPath, err = obtained.PreferredContent(i.Policy.ContentPath)
	if err != nil {
		return err
	}
	i.tailoringPath, err = obtained.PreferredTailoring(i.Policy.TailoringPath)
	if err != nil {
		return err
	}

	log.Printf("using the content file %s\n", i.contentPath)
	return nil
}

// preinstContentPath falls back to the policy-derived path when the fetch
// step did not run in this process.
func (i *Installer) preinstContentPath() string {
	if i.contentPath != "" {
		return i.contentPath
	}
	return i.Policy.PreinstContentPath(i.ContentDir)
}

func (i *Installer) preinstTailoringPath() string {
	if i.tailoringPath != "" {
		return i.tailoringPath
	}
	return i.Policy.PreinstTailoringPath(i.ContentDir)
}

// evaluateRules generates the pre-installation fix rules for the selected
// profile and applies them to the planned configuration. Fatal findings
// abort the installation.
func (i *Installer) evaluateRules(context.Context) error {
	if i.Policy.ProfileID == "" {
		log.Println("no profile selected, skipping the rule evaluation")
		return nil
	}

	fixes, err := i.Launcher.GenerateFix(i.Policy, i.contentPath, i.tailoringPath)
	if err != nil {
		return err
	}
	if err := i.ruleData.ParseRules(fixes); err != nil {
		return xerrors.Errorf("failed to parse the generated fix rules: %w", err)
	}

	i.messages = i.ruleData.Eval(i.State, false)
	for _, message := range i.messages {
		log.Printf("[%s] %s: %s\n", message.Type, message.Origin, message.Text)
	}
	if err := i.Fs.WriteJSON(filepath.Join(i.ContentDir, MessagesName), i.messages); err != nil {
		return err
	}

	if rules.HasFatal(i.messages) {
		i.ruleData.Revert(i.State)
		return ErrFatalFindings
	}
	return nil
}

// installContent puts the used content onto the installed system so that
// the policy can be evaluated there after the installation.
func (i *Installer) installContent(context.Context) error {
	targetDir := filepath.Join(i.Sysroot, i.TargetDir)
	if err := utils.EnsureDirExists(targetDir); err != nil {
		return err
	}

	switch i.Policy.ContentType {
	case policy.TypeSSG:
		// the scap-security-guide package is among the requirements
	case policy.TypeDataStream:
		src := i.preinstContentPath()
		if err := utils.CopyFile(src, filepath.Join(targetDir, filepath.Base(src))); err != nil {
			return err
		}
	case policy.TypeRPM:
		// copy the package to the target system and install it there
		name, err := i.Policy.ContentName()
		if err != nil {
			return err
		}
		raw := i.Policy.RawPreinstContentPath(i.ContentDir)
		if err := utils.CopyFile(raw, filepath.Join(targetDir, name)); err != nil {
			return err
		}
		if err := i.InstallPackages(i.Sysroot, []string{filepath.Join(i.TargetDir, name)}); err != nil {
			return err
		}
	default:
		if err := utils.UniversalCopy(filepath.Join(i.ContentDir, "*"), targetDir); err != nil {
			return err
		}
	}

	if tailoring := i.preinstTailoringPath(); tailoring != "" {
		if exists, _ := utils.Exists(tailoring); exists {
			return utils.CopyFile(tailoring,
				filepath.Join(targetDir, filepath.Base(tailoring)))
		}
	}
	return nil
}

// remediateSystem evaluates the profile on the installed system and applies
// the available fixes, chrooted into the sysroot.
func (i *Installer) remediateSystem(context.Context) error {
	if i.Policy.ProfileID == "" {
		log.Println("no profile selected, skipping the remediation")
		return nil
	}

	return i.Launcher.Remediate(i.Policy,
		i.Policy.PostinstContentPath(i.TargetDir),
		i.Policy.PostinstTailoringPath(i.TargetDir),
		i.Policy.ResultsPath(i.TargetDir),
		i.Policy.ReportPath(i.TargetDir),
		i.Sysroot)
}
