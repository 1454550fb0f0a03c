// Package rules evaluates the pre-installation fixes generated from a SCAP
// profile against the planned system configuration.
package rules

// State captures the part of the installation setup the rules can inspect
// and change.
type State struct {
	// MountPoints maps planned mount points to their mount options.
	MountPoints map[string][]string

	RootPassword        string
	RootPasswordCrypted bool
	RootPasswordSeen    bool

	// RootPasswordMinLen is the enforced minimal password length, zero
	// means no requirement.
	RootPasswordMinLen int

	// Packages and ExcludedPackages are the package selection of the
	// installation.
	Packages         []string
	ExcludedPackages []string

	BootloaderPassword string
}

func NewState() *State {
	return &State{
		MountPoints: make(map[string][]string),
	}
}
