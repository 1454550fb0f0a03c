// Package content turns a policy into usable SCAP files on disk: it fetches
// the configured source, verifies and unpacks it and sorts out what kind of
// files arrived.
package content

import (
	"errors"
	"path/filepath"

	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/scap"
)

var (
	ErrNoUsableContent  = errors.New("no usable SCAP content found")
	ErrDuplicateContent = errors.New("more than one file of a unique content type")
)

// Obtained is the inventory of SCAP files gathered under one directory.
type Obtained struct {
	root string

	labelled   map[string]scap.DocType
	datastream string
	xccdf      string
	tailoring  string
	ovals      []string
	cpes       []string
}

func NewObtained(root string) *Obtained {
	return &Obtained{
		root:     root,
		labelled: make(map[string]scap.DocType),
	}
}

// AddFile records a file under its content type. Content types that can
// appear only once reject a second, different file.
func (o *Obtained) AddFile(path string, label scap.DocType) error {
	unique := func(current *string) error {
		if *current != "" && *current != path {
			return xerrors.Errorf("'%s' and '%s' are both of the type '%s': %w",
				*current, path, label, ErrDuplicateContent)
		}
		*current = path
		return nil
	}

	switch label {
	case scap.TypeDataStream:
		if err := unique(&o.datastream); err != nil {
			return err
		}
	case scap.TypeXCCDF:
		if err := unique(&o.xccdf); err != nil {
			return err
		}
	case scap.TypeTailoring:
		if err := unique(&o.tailoring); err != nil {
			return err
		}
	case scap.TypeOVAL:
		o.ovals = append(o.ovals, path)
	case scap.TypeCPEDict:
		o.cpes = append(o.cpes, path)
	default:
		return nil
	}
	o.labelled[path] = label
	return nil
}

// Labels maps every recorded file to its content type.
func (o *Obtained) Labels() map[string]scap.DocType {
	return o.labelled
}

// xccdfContent returns the plain checklist, but only when at least one OVAL
// file accompanies it. A lone XCCDF cannot be evaluated.
func (o *Obtained) xccdfContent() string {
	if o.xccdf == "" || len(o.ovals) == 0 {
		return ""
	}
	return o.xccdf
}

// SelectMainUsableContent picks the content file to evaluate against, a
// source data stream being preferred over an XCCDF-OVAL file tuple.
func (o *Obtained) SelectMainUsableContent() (string, error) {
	if o.datastream != "" {
		return o.datastream, nil
	}
	if xccdf := o.xccdfContent(); xccdf != "" {
		return xccdf, nil
	}
	return "", xerrors.Errorf("no data stream or XCCDF-OVAL file tuple among the obtained files: %w",
		ErrNoUsableContent)
}

// expectedPath resolves a path from the policy against the content root.
func (o *Obtained) expectedPath(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(o.root, relPath)
}

// FindExpectedUsableContent looks up the file the policy points at with its
// content-path, relative to the content root.
func (o *Obtained) FindExpectedUsableContent(relPath string) (string, error) {
	expected := o.expectedPath(relPath)
	if expected == o.datastream || expected == o.xccdfContent() {
		return expected, nil
	}
	if label, ok := o.labelled[expected]; ok {
		return "", xerrors.Errorf("the file '%s' is a '%s', not an evaluatable data stream "+
			"or XCCDF-OVAL file tuple: %w", relPath, label, ErrNoUsableContent)
	}
	return "", xerrors.Errorf("the expected file '%s' was not found in the obtained content: %w",
		relPath, ErrNoUsableContent)
}

// PreferredContent returns the content file selected by contentPath, or the
// main usable content when no path is given.
func (o *Obtained) PreferredContent(contentPath string) (string, error) {
	if contentPath != "" {
		return o.FindExpectedUsableContent(contentPath)
	}
	return o.SelectMainUsableContent()
}

// PreferredTailoring checks that the obtained tailoring file is the one the
// policy asks for.
func (o *Obtained) PreferredTailoring(tailoringPath string) (string, error) {
	if tailoringPath == "" {
		return "", nil
	}
	if o.tailoring == "" {
		return "", xerrors.Errorf("the expected tailoring file '%s' was not found in the "+
			"obtained content: %w", tailoringPath, ErrNoUsableContent)
	}
	if o.tailoring != o.expectedPath(tailoringPath) {
		return "", xerrors.Errorf("unexpected tailoring file '%s', expected '%s': %w",
			o.tailoring, tailoringPath, ErrNoUsableContent)
	}
	return o.tailoring, nil
}
