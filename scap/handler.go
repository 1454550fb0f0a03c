package scap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/xerrors"
)

// DocType is the kind of a SCAP source file.
type DocType string

const (
	TypeDataStream DocType = "Source Data Stream"
	TypeXCCDF      DocType = "XCCDF Checklist"
	TypeOVAL       DocType = "OVAL Definitions"
	TypeCPEDict    DocType = "CPE Dictionary"
	TypeTailoring  DocType = "XCCDF Tailoring"
	TypeUnknown    DocType = "unknown"
)

var ErrWrongContent = errors.New("the SCAP content does not match the request")

// ProfileInfo is what the UI and the CLI show about a single XCCDF profile.
type ProfileInfo struct {
	ID          string
	Title       string
	Description string
}

// DefaultProfile stands in when a benchmark defines no profiles of its own.
var DefaultProfile = ProfileInfo{
	ID:          "default",
	Title:       "Default",
	Description: "The implicit XCCDF profile. Usually, the default profile contains no rules.",
}

// Document is a loaded SCAP source file.
type Document struct {
	Path string

	kind      DocType
	ds        *dataStreamCollection
	benchmark *benchmarkElem
	tailoring *tailoringElem
}

// Sniff reports the kind of SCAP document stored in the given bytes,
// judging by the root element.
func Sniff(raw []byte) DocType {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	for {
		token, err := decoder.Token()
		if err != nil {
			return TypeUnknown
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "data-stream-collection":
			return TypeDataStream
		case "Benchmark":
			return TypeXCCDF
		case "Tailoring":
			return TypeTailoring
		case "oval_definitions":
			return TypeOVAL
		case "cpe-list":
			return TypeCPEDict
		default:
			return TypeUnknown
		}
	}
}

// Load reads and parses a SCAP source file.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read %s: %w", path, err)
	}

	doc := &Document{Path: path, kind: Sniff(raw)}
	switch doc.kind {
	case TypeDataStream:
		doc.ds = &dataStreamCollection{}
		err = xml.Unmarshal(raw, doc.ds)
	case TypeXCCDF:
		doc.benchmark = &benchmarkElem{}
		err = xml.Unmarshal(raw, doc.benchmark)
	case TypeTailoring:
		doc.tailoring = &tailoringElem{}
		err = xml.Unmarshal(raw, doc.tailoring)
	case TypeOVAL, TypeCPEDict:
		// nothing to pull out of these, the scanner consumes them directly
	default:
		return nil, xerrors.Errorf("%s is not a recognized SCAP file", path)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

func (d *Document) Type() DocType {
	return d.kind
}

// DataStreamChecklists maps data stream IDs to the IDs of their checklists.
func (d *Document) DataStreamChecklists() (map[string][]string, error) {
	if d.kind != TypeDataStream {
		return nil, xerrors.Errorf("%s is not a data stream collection: %w", d.Path, ErrWrongContent)
	}

	checklists := make(map[string][]string)
	for _, ds := range d.ds.DataStreams {
		ids := []string{}
		for _, ref := range ds.Checklists.Refs {
			ids = append(ids, ref.ID)
		}
		checklists[ds.ID] = ids
	}
	return checklists, nil
}

// SelectChecklist picks a data stream and checklist pair. Empty arguments
// select the only, or the first, available option.
func (d *Document) SelectChecklist(dsID, xccdfID string) (string, string, error) {
	checklists, err := d.DataStreamChecklists()
	if err != nil {
		return "", "", err
	}
	if len(checklists) == 0 {
		return "", "", xerrors.Errorf("no data streams found in %s: %w", d.Path, ErrWrongContent)
	}

	if dsID == "" {
		for _, ds := range d.ds.DataStreams {
			if len(ds.Checklists.Refs) > 0 {
				dsID = ds.ID
				break
			}
		}
	}
	ids, ok := checklists[dsID]
	if !ok {
		return "", "", xerrors.Errorf("no data stream '%s' in %s: %w", dsID, d.Path, ErrWrongContent)
	}
	if xccdfID == "" {
		if len(ids) == 0 {
			return "", "", xerrors.Errorf("data stream '%s' has no checklists: %w", dsID, ErrWrongContent)
		}
		return dsID, ids[0], nil
	}
	for _, id := range ids {
		if id == xccdfID {
			return dsID, xccdfID, nil
		}
	}
	return "", "", xerrors.Errorf("no checklist '%s' in data stream '%s': %w", xccdfID, dsID, ErrWrongContent)
}

func (d *Document) checklistBenchmark(dsID, xccdfID string) (*benchmarkElem, error) {
	var stream *dataStream
	for i := range d.ds.DataStreams {
		if d.ds.DataStreams[i].ID == dsID {
			stream = &d.ds.DataStreams[i]
			break
		}
	}
	if stream == nil {
		return nil, xerrors.Errorf("no data stream '%s' in %s: %w", dsID, d.Path, ErrWrongContent)
	}

	var href string
	for _, ref := range stream.Checklists.Refs {
		if ref.ID == xccdfID {
			href = ref.Href
			break
		}
	}
	if href == "" {
		return nil, xerrors.Errorf("no checklist '%s' in data stream '%s': %w", xccdfID, dsID, ErrWrongContent)
	}

	componentID := strings.TrimPrefix(href, "#")
	for _, comp := range d.ds.Components {
		if comp.ID == componentID && comp.Benchmark != nil {
			return comp.Benchmark, nil
		}
	}
	return nil, xerrors.Errorf("checklist component '%s' not found in %s: %w", componentID, d.Path, ErrWrongContent)
}

// Profiles lists the profiles of the selected checklist. For a data stream
// collection both dsID and xccdfID must be given, for a plain XCCDF
// checklist both must be empty. A benchmark with no profiles yields the
// implicit default profile.
func (d *Document) Profiles(dsID, xccdfID string) ([]ProfileInfo, error) {
	var benchmark *benchmarkElem

	switch d.kind {
	case TypeDataStream:
		if dsID == "" || xccdfID == "" {
			return nil, xerrors.Errorf("a data stream and checklist must be selected for %s: %w",
				d.Path, ErrWrongContent)
		}
		var err error
		benchmark, err = d.checklistBenchmark(dsID, xccdfID)
		if err != nil {
			return nil, err
		}
	case TypeXCCDF:
		if dsID != "" || xccdfID != "" {
			return nil, xerrors.Errorf("%s is not a data stream collection, datastream-id "+
				"and xccdf-id must not be set: %w", d.Path, ErrWrongContent)
		}
		benchmark = d.benchmark
	default:
		return nil, xerrors.Errorf("%s has no profiles: %w", d.Path, ErrWrongContent)
	}

	if len(benchmark.Profiles) == 0 {
		return []ProfileInfo{DefaultProfile}, nil
	}

	profiles := make([]ProfileInfo, 0, len(benchmark.Profiles))
	for _, p := range benchmark.Profiles {
		profiles = append(profiles, newProfileInfo(p))
	}
	return profiles, nil
}

// TailoringProfiles lists the profiles defined by a tailoring file.
func (d *Document) TailoringProfiles() ([]ProfileInfo, error) {
	if d.kind != TypeTailoring {
		return nil, xerrors.Errorf("%s is not a tailoring file: %w", d.Path, ErrWrongContent)
	}

	profiles := make([]ProfileInfo, 0, len(d.tailoring.Profiles))
	for _, p := range d.tailoring.Profiles {
		info := newProfileInfo(p)
		if info.Title == "" {
			info.Title = p.Extends
		}
		profiles = append(profiles, info)
	}
	return profiles, nil
}

func newProfileInfo(p profileElem) ProfileInfo {
	info := ProfileInfo{ID: p.ID}
	for _, title := range p.Title {
		if value := strings.TrimSpace(title.Value); value != "" {
			info.Title = value
			break
		}
	}
	for _, desc := range p.Description {
		if value := htmlToPlain(desc.Inner); value != "" {
			info.Description = value
			break
		}
	}
	return info
}

// Status returns the latest status of the benchmark and its date.
func (d *Document) Status() (string, time.Time, bool) {
	var benchmark *benchmarkElem
	switch d.kind {
	case TypeXCCDF:
		benchmark = d.benchmark
	case TypeDataStream:
		for _, comp := range d.ds.Components {
			if comp.Benchmark != nil {
				benchmark = comp.Benchmark
				break
			}
		}
	}
	if benchmark == nil || len(benchmark.Statuses) == 0 {
		return "", time.Time{}, false
	}

	latest := benchmark.Statuses[0]
	latestDate, _ := dateparse.ParseAny(latest.Date)
	for _, status := range benchmark.Statuses[1:] {
		date, err := dateparse.ParseAny(status.Date)
		if err != nil {
			continue
		}
		if date.After(latestDate) {
			latest, latestDate = status, date
		}
	}
	return strings.TrimSpace(latest.Value), latestDate, true
}
