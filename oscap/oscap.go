// Package oscap drives the oscap command line tool to generate fixes,
// inspect content and remediate the installed system.
package oscap

import (
	"bytes"
	"log"
	"os/exec"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

const toolName = "oscap"

// errRegexp picks the interesting part out of the oscap stderr output.
var errRegexp = regexp.MustCompile(`OpenSCAP Error:.*|E: oscap:.*`)

type runFunc func(name string, args ...string) (stdout, stderr string, exitCode int, err error)

// Launcher builds and runs oscap invocations.
type Launcher struct {
	run runFunc
}

func New() *Launcher {
	return &Launcher{run: runCommand}
}

// NewWithRunner returns a Launcher that calls the given function instead of
// executing commands. Meant for tests.
func NewWithRunner(run func(name string, args ...string) (string, string, int, error)) *Launcher {
	return &Launcher{run: run}
}

func runCommand(name string, args ...string) (string, string, int, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if xerrors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1,
			xerrors.Errorf("failed to run %s: %w", name, err)
	}
	return stdout.String(), stderr.String(), 0, nil
}

// Available tells whether the oscap tool can be found.
func (l *Launcher) Available() bool {
	return utils.IsCommandAvailable(toolName)
}

// ExtractError returns the oscap error lines of the given stderr output, or
// the whole output when no such line is found.
func ExtractError(stderr string) string {
	matches := errRegexp.FindAllString(stderr, -1)
	if len(matches) == 0 {
		return strings.TrimSpace(stderr)
	}
	return strings.Join(matches, "\n")
}

// profileArgs are the selection arguments shared by the xccdf subcommands.
func profileArgs(data policy.Data, tailoringPath string) []string {
	var args []string
	// oscap treats a missing --profile as the implicit default profile
	if data.ProfileID != "" && data.ProfileID != "default" {
		args = append(args, "--profile="+data.ProfileID)
	}
	if data.DataStreamID != "" {
		args = append(args, "--datastream-id="+data.DataStreamID)
	}
	if data.XCCDFID != "" {
		args = append(args, "--xccdf-id="+data.XCCDFID)
	}
	if tailoringPath != "" {
		args = append(args, "--tailoring-file="+tailoringPath)
	}
	return args
}

// GenerateFix returns the pre-installation fix rules for the selected
// profile of the given content.
func (l *Launcher) GenerateFix(data policy.Data, contentPath, tailoringPath string) (string, error) {
	args := []string{"xccdf", "generate", "fix", "--template=" + policy.PreInstallFixSystem}
	args = append(args, profileArgs(data, tailoringPath)...)
	args = append(args, contentPath)

	log.Printf("running %s %s\n", toolName, strings.Join(args, " "))
	stdout, stderr, exitCode, err := l.run(toolName, args...)
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		return "", xerrors.Errorf("failed to generate fix rules from %s: %s",
			contentPath, ExtractError(stderr))
	}
	return stdout, nil
}

// Remediate evaluates the selected profile on the (possibly chrooted)
// system and applies the available fixes. The oscap tool reports a failed
// or fixed rule with exit code 2, both are a success here.
func (l *Launcher) Remediate(data policy.Data, contentPath, tailoringPath,
	resultsPath, reportPath, chrootDir string) error {

	args := []string{
		"xccdf", "eval", "--remediate",
		"--results=" + resultsPath,
		"--report=" + reportPath,
	}
	args = append(args, profileArgs(data, tailoringPath)...)
	args = append(args, contentPath)

	name := toolName
	if chrootDir != "" && chrootDir != "/" {
		args = append([]string{chrootDir, toolName}, args...)
		name = "chroot"
	}

	log.Printf("running %s %s\n", name, strings.Join(args, " "))
	_, stderr, exitCode, err := l.run(name, args...)
	if err != nil {
		return err
	}
	if !lo.Contains([]int{0, 2}, exitCode) {
		return xerrors.Errorf("oscap remediation failed with exit code %d: %s",
			exitCode, ExtractError(stderr))
	}
	return nil
}

// DocType asks oscap what kind of SCAP document the given file is. Files
// the tool cannot parse are reported as unknown.
func (l *Launcher) DocType(path string) string {
	stdout, stderr, exitCode, err := l.run(toolName, "info", path)
	if err != nil || exitCode != 0 {
		log.Printf("oscap info failed for %s: %s\n", path, ExtractError(stderr))
		return "unknown"
	}

	for _, line := range strings.Split(stdout, "\n") {
		if value, found := strings.CutPrefix(strings.TrimSpace(line), "Document type:"); found {
			return strings.TrimSpace(value)
		}
	}
	return "unknown"
}
