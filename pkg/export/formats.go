package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/core-tools/hsu-ecosystem-go/pkg/ecosystem"
	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
)

// Format is an output representation accepted by Render
type Format string

const (
	FormatYAML       Format = "yaml"
	FormatJSON       Format = "json"
	FormatJS         Format = "js"
	FormatPupervisor Format = "pupervisor"
	FormatHSU        Format = "hsu"
)

var allFormats = []Format{FormatYAML, FormatJSON, FormatJS, FormatPupervisor, FormatHSU}

func Formats() []Format {
	formats := make([]Format, len(allFormats))
	copy(formats, allFormats)
	return formats
}

func ParseFormat(s string) (Format, error) {
	needle := Format(strings.ToLower(strings.TrimSpace(s)))
	if needle == "yml" {
		needle = FormatYAML
	}
	for _, f := range allFormats {
		if f == needle {
			return f, nil
		}
	}

	names := make([]string, 0, len(allFormats))
	for _, f := range allFormats {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return "", errors.NewValidationError(fmt.Sprintf("unsupported export format: %s", s), nil).
		WithContext("supported_formats", strings.Join(names, ", "))
}

// ecosystemFormat maps round-trip formats onto the ecosystem encoder
func (f Format) ecosystemFormat() (ecosystem.Format, bool) {
	switch f {
	case FormatYAML:
		return ecosystem.FormatYAML, true
	case FormatJSON:
		return ecosystem.FormatJSON, true
	case FormatJS:
		return ecosystem.FormatJS, true
	}
	return "", false
}

// DefaultFileName is the conventional file name for the format
func (f Format) DefaultFileName() string {
	switch f {
	case FormatYAML:
		return "ecosystem.config.yaml"
	case FormatJSON:
		return "ecosystem.config.json"
	case FormatJS:
		return "ecosystem.config.js"
	case FormatPupervisor:
		return "pupervisor.yaml"
	case FormatHSU:
		return "hsu-procman.yaml"
	}
	return "ecosystem.out"
}
