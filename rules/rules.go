package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"
)

// MessageType is the severity of a rule evaluation message.
type MessageType int

const (
	Info MessageType = iota
	Warning
	Fatal
)

func (t MessageType) String() string {
	switch t {
	case Fatal:
		return "fatal"
	case Warning:
		return "warning"
	default:
		return "info"
	}
}

// Message is a single finding produced by evaluating a rule.
type Message struct {
	Type   MessageType `json:"type"`
	Origin string      `json:"origin"`
	Text   string      `json:"text"`
}

// Data holds the parsed pre-installation fix rules of a profile.
type Data struct {
	partOrder  []string
	parts      map[string]*partRule
	passwd     *passwdRule
	packages   *packageRule
	bootloader *bootloaderRule
}

func New() *Data {
	return &Data{
		parts:      make(map[string]*partRule),
		passwd:     &passwdRule{},
		packages:   &packageRule{},
		bootloader: &bootloaderRule{},
	}
}

// ParseRules feeds every non-empty line of the generated fix to ParseRule.
func (d *Data) ParseRules(fixes string) error {
	for _, line := range strings.Split(fixes, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := d.ParseRule(line); err != nil {
			return err
		}
	}
	return nil
}

// ParseRule handles a single rule line, e.g.
// "part /tmp --mountoptions=nodev" or "passwd --minlen=14".
func (d *Data) ParseRule(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return xerrors.New("cannot parse an empty rule line")
	}
	switch fields[0] {
	case "part":
		return d.parsePart(fields[1:])
	case "passwd":
		return d.parsePasswd(fields[1:])
	case "package":
		return d.parsePackage(fields[1:])
	case "bootloader":
		return d.parseBootloader(fields[1:])
	default:
		return xerrors.Errorf("unknown rule '%s'", line)
	}
}

func (d *Data) parsePart(args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "--") {
		return xerrors.New("the part rule needs a mount point")
	}
	mountPoint := args[0]

	rule, ok := d.parts[mountPoint]
	if !ok {
		rule = &partRule{mountPoint: mountPoint}
		d.parts[mountPoint] = rule
		d.partOrder = append(d.partOrder, mountPoint)
	}
	for _, arg := range args[1:] {
		value, found := strings.CutPrefix(arg, "--mountoptions=")
		if !found {
			return xerrors.Errorf("unknown option '%s' for the part rule", arg)
		}
		for _, opt := range strings.Split(value, ",") {
			if opt != "" && !lo.Contains(rule.options, opt) {
				rule.options = append(rule.options, opt)
			}
		}
	}
	return nil
}

func (d *Data) parsePasswd(args []string) error {
	for _, arg := range args {
		value, found := strings.CutPrefix(arg, "--minlen=")
		if !found {
			return xerrors.Errorf("unknown option '%s' for the passwd rule", arg)
		}
		minLen, err := strconv.Atoi(value)
		if err != nil {
			return xerrors.Errorf("invalid minimal password length '%s': %w", value, err)
		}
		// the strictest requirement wins
		if minLen > d.passwd.minLen {
			d.passwd.minLen = minLen
		}
	}
	return nil
}

func (d *Data) parsePackage(args []string) error {
	for _, arg := range args {
		if value, found := strings.CutPrefix(arg, "--add="); found {
			if !lo.Contains(d.packages.add, value) {
				d.packages.add = append(d.packages.add, value)
			}
			continue
		}
		if value, found := strings.CutPrefix(arg, "--remove="); found {
			if !lo.Contains(d.packages.remove, value) {
				d.packages.remove = append(d.packages.remove, value)
			}
			continue
		}
		return xerrors.Errorf("unknown option '%s' for the package rule", arg)
	}
	return nil
}

func (d *Data) parseBootloader(args []string) error {
	for _, arg := range args {
		if arg != "--passwd" {
			return xerrors.Errorf("unknown option '%s' for the bootloader rule", arg)
		}
		d.bootloader.passwdRequired = true
	}
	return nil
}

// Eval checks the rules against the planned configuration and, unless
// reportOnly is set, applies the changes they mandate. A Fatal message
// means the installation must not proceed.
func (d *Data) Eval(state *State, reportOnly bool) []Message {
	var messages []Message
	for _, mountPoint := range d.partOrder {
		messages = append(messages, d.parts[mountPoint].eval(state, reportOnly)...)
	}
	messages = append(messages, d.passwd.eval(state, reportOnly)...)
	messages = append(messages, d.packages.eval(state, reportOnly)...)
	messages = append(messages, d.bootloader.eval(state)...)
	return messages
}

// Revert undoes every change a previous Eval made to the state.
func (d *Data) Revert(state *State) {
	for _, rule := range d.parts {
		rule.revert(state)
	}
	d.passwd.revert(state)
	d.packages.revert(state)
}

// HasFatal tells whether any of the messages blocks the installation.
func HasFatal(messages []Message) bool {
	return lo.SomeBy(messages, func(m Message) bool {
		return m.Type == Fatal
	})
}

type partRule struct {
	mountPoint string
	options    []string

	addedOptions []string
}

func (r *partRule) eval(state *State, reportOnly bool) []Message {
	origin := "part " + r.mountPoint

	options, ok := state.MountPoints[r.mountPoint]
	if !ok {
		return []Message{{Type: Fatal, Origin: origin, Text: fmt.Sprintf(
			"%s must be on a separate partition or logical volume and has to be created "+
				"in the partitioning layout before installation can occur with a security profile",
			r.mountPoint)}}
	}

	var messages []Message
	for _, opt := range r.options {
		if lo.Contains(options, opt) {
			continue
		}
		messages = append(messages, Message{Type: Info, Origin: origin, Text: fmt.Sprintf(
			"mount option '%s' added for the mount point %s", opt, r.mountPoint)})
		if !reportOnly {
			state.MountPoints[r.mountPoint] = append(state.MountPoints[r.mountPoint], opt)
			r.addedOptions = append(r.addedOptions, opt)
		}
	}
	return messages
}

func (r *partRule) revert(state *State) {
	if len(r.addedOptions) == 0 {
		return
	}
	state.MountPoints[r.mountPoint] = lo.Filter(state.MountPoints[r.mountPoint],
		func(opt string, _ int) bool {
			return !lo.Contains(r.addedOptions, opt)
		})
	r.addedOptions = nil
}

type passwdRule struct {
	minLen int

	applied bool
}

func (r *passwdRule) eval(state *State, reportOnly bool) []Message {
	if r.minLen == 0 {
		return nil
	}
	origin := "passwd"

	var messages []Message
	switch {
	case !state.RootPasswordSeen:
		messages = append(messages, Message{Type: Info, Origin: origin, Text: fmt.Sprintf(
			"the root password will be required to have at least %d characters", r.minLen)})
	case state.RootPasswordCrypted:
		messages = append(messages, Message{Type: Warning, Origin: origin,
			Text: "cannot check the length of the already crypted root password"})
	case len(state.RootPassword) < r.minLen:
		return []Message{{Type: Fatal, Origin: origin, Text: fmt.Sprintf(
			"the root password is too short, a password with at least %d characters is required "+
				"by the security policy", r.minLen)}}
	}

	if !reportOnly {
		if state.RootPasswordMinLen < r.minLen {
			state.RootPasswordMinLen = r.minLen
			r.applied = true
		}
	}
	return messages
}

func (r *passwdRule) revert(state *State) {
	if r.applied {
		state.RootPasswordMinLen = 0
		r.applied = false
	}
}

type packageRule struct {
	add    []string
	remove []string

	addedPackages    []string
	excludedPackages []string
}

func (r *packageRule) eval(state *State, reportOnly bool) []Message {
	var messages []Message
	for _, pkg := range r.add {
		if lo.Contains(state.Packages, pkg) {
			continue
		}
		messages = append(messages, Message{Type: Info, Origin: "package", Text: fmt.Sprintf(
			"package '%s' has been added to the list of to be installed packages", pkg)})
		if !reportOnly {
			state.Packages = append(state.Packages, pkg)
			r.addedPackages = append(r.addedPackages, pkg)
		}
	}
	for _, pkg := range r.remove {
		if lo.Contains(state.ExcludedPackages, pkg) {
			continue
		}
		messages = append(messages, Message{Type: Info, Origin: "package", Text: fmt.Sprintf(
			"package '%s' has been added to the list of excluded packages", pkg)})
		if !reportOnly {
			state.ExcludedPackages = append(state.ExcludedPackages, pkg)
			r.excludedPackages = append(r.excludedPackages, pkg)
		}
	}
	return messages
}

func (r *packageRule) revert(state *State) {
	state.Packages = lo.Filter(state.Packages, func(pkg string, _ int) bool {
		return !lo.Contains(r.addedPackages, pkg)
	})
	state.ExcludedPackages = lo.Filter(state.ExcludedPackages, func(pkg string, _ int) bool {
		return !lo.Contains(r.excludedPackages, pkg)
	})
	r.addedPackages = nil
	r.excludedPackages = nil
}

type bootloaderRule struct {
	passwdRequired bool
}

func (r *bootloaderRule) eval(state *State) []Message {
	if !r.passwdRequired {
		return nil
	}
	if state.BootloaderPassword == "" {
		return []Message{{Type: Fatal, Origin: "bootloader",
			Text: "boot loader password not set up as required by the security policy"}}
	}
	return nil
}
