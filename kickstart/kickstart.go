// Package kickstart parses and generates the %addon section carrying the
// security policy configuration.
package kickstart

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/OpenSCAP/oscap-anaconda-addon/policy"
	"github.com/OpenSCAP/oscap-anaconda-addon/utils"
)

// AddonNames lists the recognized %addon section names, the canonical one
// first. The others are kept for backward compatibility.
var AddonNames = []string{"org_fedora_oscap", "com_redhat_oscap"}

var fingerprintRegexp = regexp.MustCompile(`^[a-z0-9]+$`)

// Result is the outcome of scanning a kickstart file for the addon section.
type Result struct {
	Data     policy.Data
	Found    bool
	Warnings []string
}

// ParseLine handles a single "key = value" line of the %addon section.
func ParseLine(data *policy.Data, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	pre, post, _ := strings.Cut(line, "=")
	key := strings.TrimSpace(pre)
	value := strings.Trim(strings.TrimSpace(post), `"`)

	switch key {
	case "content-type":
		if !policy.SupportedContentType(value) {
			return xerrors.Errorf("unsupported content type '%s'", value)
		}
		data.ContentType = strings.ToLower(value)
	case "content-url":
		if !policy.SupportedURL(value) {
			return xerrors.Errorf("unsupported url '%s'", value)
		}
		data.ContentURL = value
	case "datastream-id":
		data.DataStreamID = value
	case "xccdf-id":
		data.XCCDFID = value
	case "profile":
		data.ProfileID = value
	case "content-path", "xccdf-path":
		data.ContentPath = value
	case "cpe-path":
		data.CPEPath = value
	case "tailoring-path":
		data.TailoringPath = value
	case "fingerprint":
		if !fingerprintRegexp.MatchString(value) {
			return xerrors.New("unsupported or invalid fingerprint")
		}
		if _, _, ok := utils.HashAlgorithm(value); !ok {
			return xerrors.New("unsupported fingerprint")
		}
		data.Fingerprint = value
	case "certificates":
		data.Certificates = value
	default:
		return xerrors.Errorf("unknown item '%s' for the %s addon", line, AddonNames[0])
	}
	return nil
}

// ParseSection parses the body of a %addon section and validates the result.
func ParseSection(lines []string, ssgPath string) (policy.Data, error) {
	var data policy.Data
	for _, line := range lines {
		if err := ParseLine(&data, line); err != nil {
			return policy.Data{}, err
		}
	}
	if err := data.Validate(ssgPath); err != nil {
		return policy.Data{}, err
	}
	return data, nil
}

// Parse scans a whole kickstart file and extracts the addon section.
// More than one oscap addon section is an error; sections using a legacy
// name produce a warning.
func Parse(r io.Reader, ssgPath string) (Result, error) {
	type section struct {
		name  string
		lines []string
	}

	var sections []section
	var current *section

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if current != nil {
			if trimmed == "%end" {
				sections = append(sections, *current)
				current = nil
				continue
			}
			current.lines = append(current.lines, line)
			continue
		}

		if !strings.HasPrefix(trimmed, "%addon") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		if lo.Contains(AddonNames, fields[1]) {
			current = &section{name: fields[1]}
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, xerrors.Errorf("failed to read the kickstart: %w", err)
	}
	if current != nil {
		return Result{}, xerrors.Errorf("missing %%end for the %%addon %s section", current.name)
	}

	if len(sections) == 0 {
		return Result{}, nil
	}
	if len(sections) > 1 {
		return Result{}, xerrors.Errorf(
			"more than one oscap addon section used in the kickstart, "+
				"please use only '%%addon %s'", AddonNames[0])
	}

	var warnings []string
	if sections[0].name != AddonNames[0] {
		warnings = append(warnings, fmt.Sprintf(
			"the '%%addon %s' section is deprecated, use '%%addon %s' instead",
			sections[0].name, AddonNames[0]))
	}

	data, err := ParseSection(sections[0].lines, ssgPath)
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data, Found: true, Warnings: warnings}, nil
}

func keyValuePair(key, value string) string {
	return fmt.Sprintf("    %s = %s", key, value)
}

// Write generates the kickstart representation of the policy. It returns an
// empty string when no profile is selected.
func Write(data policy.Data) string {
	if data.ProfileID == "" {
		return ""
	}

	lines := []string{fmt.Sprintf("%%addon %s", AddonNames[0])}
	lines = append(lines, keyValuePair("content-type", data.ContentType))

	if data.ContentURL != "" {
		lines = append(lines, keyValuePair("content-url", data.ContentURL))
	}
	if data.DataStreamID != "" {
		lines = append(lines, keyValuePair("datastream-id", data.DataStreamID))
	}
	if data.XCCDFID != "" {
		lines = append(lines, keyValuePair("xccdf-id", data.XCCDFID))
	}
	if data.ContentPath != "" && data.ContentType != policy.TypeSSG {
		lines = append(lines, keyValuePair("content-path", data.ContentPath))
	}
	if data.CPEPath != "" {
		lines = append(lines, keyValuePair("cpe-path", data.CPEPath))
	}
	if data.TailoringPath != "" {
		lines = append(lines, keyValuePair("tailoring-path", data.TailoringPath))
	}

	lines = append(lines, keyValuePair("profile", data.ProfileID))

	if data.Fingerprint != "" {
		lines = append(lines, keyValuePair("fingerprint", data.Fingerprint))
	}
	if data.Certificates != "" {
		lines = append(lines, keyValuePair("certificates", data.Certificates))
	}

	lines = append(lines, "%end", "", "")
	return strings.Join(lines, "\n")
}
