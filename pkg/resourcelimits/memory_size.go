package resourcelimits

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// MemorySize is a memory threshold written the way process managers accept it:
// "500M", "1G", "512K" or a bare byte count. Multipliers are binary (1K = 1024).
// The original text is kept so that encoding reproduces what the user wrote.
type MemorySize struct {
	raw string
}

func NewMemorySize(raw string) MemorySize {
	return MemorySize{raw: strings.TrimSpace(raw)}
}

// MemorySizeFromBytes returns the most compact K/M/G spelling of bytes
func MemorySizeFromBytes(bytes int64) MemorySize {
	suffixes := []struct {
		suffix string
		factor int64
	}{
		{"G", units.GiB},
		{"M", units.MiB},
		{"K", units.KiB},
	}
	for _, s := range suffixes {
		if bytes >= s.factor && bytes%s.factor == 0 {
			return MemorySize{raw: strconv.FormatInt(bytes/s.factor, 10) + s.suffix}
		}
	}
	return MemorySize{raw: strconv.FormatInt(bytes, 10)}
}

// IsSet reports whether a threshold was configured at all
func (m MemorySize) IsSet() bool {
	return m.raw != ""
}

func (m MemorySize) String() string {
	return m.raw
}

// Bytes parses the quantity. Zero and negative sizes are rejected.
func (m MemorySize) Bytes() (int64, error) {
	if !m.IsSet() {
		return 0, errors.NewValidationError("memory size is empty", nil)
	}
	return ParseMemorySize(m.raw)
}

// ParseMemorySize parses a size quantity such as "500M" into bytes
func ParseMemorySize(s string) (int64, error) {
	bytes, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NewValidationError(fmt.Sprintf("invalid memory size: %q", s), err).
			WithContext("expected", "<number>[K|M|G|T]")
	}
	if bytes <= 0 {
		return 0, errors.NewValidationError(fmt.Sprintf("memory size must be positive: %q", s), nil)
	}
	return bytes, nil
}

// HumanSize renders the parsed size with binary units, e.g. "500MiB"
func (m MemorySize) HumanSize() string {
	bytes, err := m.Bytes()
	if err != nil {
		return m.raw
	}
	return units.BytesSize(float64(bytes))
}

func (m *MemorySize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: memory size must be a scalar", node.Line)
	}
	m.raw = strings.TrimSpace(node.Value)
	return nil
}

func (m MemorySize) MarshalYAML() (interface{}, error) {
	if !m.IsSet() {
		return nil, nil
	}
	return m.raw, nil
}

func (m *MemorySize) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		m.raw = strings.TrimSpace(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("memory size must be a string or number: %w", err)
	}
	m.raw = n.String()
	return nil
}

func (m MemorySize) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}
