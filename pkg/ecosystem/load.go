package ecosystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"

	"gopkg.in/yaml.v3"
)

// Format is the on-disk representation of an ecosystem file
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatJS   Format = "js"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "js", "cjs", "javascript":
		return FormatJS, nil
	default:
		return "", errors.NewValidationError(fmt.Sprintf("unsupported ecosystem format: %s", s), nil).
			WithContext("supported_formats", "yaml, json, js")
	}
}

// LoadOptions controls how strictly a file is read
type LoadOptions struct {
	// Strict rejects unknown keys and requires every policy field to be spelled out
	Strict bool
}

// DetectFormat picks a format from the file extension and falls back to the content
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".js", ".cjs", ".mjs":
		return FormatJS
	}

	trimmed := bytes.TrimSpace(stripJSComments(data))
	switch {
	case bytes.Contains(trimmed, []byte("module.exports")) || bytes.Contains(trimmed, []byte("export default")):
		return FormatJS
	case bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Load reads an ecosystem file and applies supervisor defaults.
// The result is not validated; call ValidateEcosystem before using it.
func Load(filename string, options LoadOptions) (*Ecosystem, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("ecosystem file not found", err).WithContext("filename", filename)
		}
		return nil, errors.NewIOError("failed to read ecosystem file", err).WithContext("filename", filename)
	}

	ecosystem, err := Parse(data, DetectFormat(filename, data), options)
	if err != nil {
		if domainErr, ok := err.(*errors.DomainError); ok {
			return nil, domainErr.WithContext("filename", filename)
		}
		return nil, err
	}
	return ecosystem, nil
}

// Parse decodes ecosystem data in the given format and applies defaults
func Parse(data []byte, format Format, options LoadOptions) (*Ecosystem, error) {
	var (
		ecosystem *Ecosystem
		err       error
	)
	switch format {
	case FormatYAML:
		ecosystem, err = decodeYAML(data, format, options)
	case FormatJSON:
		ecosystem, err = decodeJSON(data, options)
	case FormatJS:
		literal, extractErr := extractJSObject(data)
		if extractErr != nil {
			return nil, extractErr
		}
		// The normalized literal is a YAML flow mapping
		ecosystem, err = decodeYAML(literal, format, options)
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unsupported ecosystem format: %s", format), nil)
	}
	if err != nil {
		return nil, err
	}

	SetDefaults(ecosystem)

	return ecosystem, nil
}

func decodeYAML(document []byte, format Format, options LoadOptions) (*Ecosystem, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(document, &root); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("failed to parse %s ecosystem", format), err)
	}
	if len(root.Content) == 0 {
		return nil, errors.NewValidationError("ecosystem file is empty", nil)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(document))
	decoder.KnownFields(options.Strict)

	var ecosystem Ecosystem
	if err := decoder.Decode(&ecosystem); err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("failed to decode %s ecosystem", format), err)
	}

	if options.Strict {
		appKeys, err := yamlAppKeys(&root)
		if err != nil {
			return nil, err
		}
		if err := checkRequiredPresence(appKeys); err != nil {
			return nil, err
		}
	}

	return &ecosystem, nil
}

func decodeJSON(document []byte, options LoadOptions) (*Ecosystem, error) {
	if len(bytes.TrimSpace(document)) == 0 {
		return nil, errors.NewValidationError("ecosystem file is empty", nil)
	}

	decoder := json.NewDecoder(bytes.NewReader(document))
	if options.Strict {
		decoder.DisallowUnknownFields()
	}

	var ecosystem Ecosystem
	if err := decoder.Decode(&ecosystem); err != nil {
		return nil, errors.NewValidationError("failed to decode json ecosystem", err)
	}

	if options.Strict {
		var raw struct {
			Apps []map[string]json.RawMessage `json:"apps"`
		}
		if err := json.Unmarshal(document, &raw); err != nil {
			return nil, errors.NewValidationError("failed to decode json ecosystem", err)
		}
		if raw.Apps == nil {
			return nil, errors.NewValidationError("ecosystem must contain an apps list", nil)
		}
		appKeys := make([]map[string]bool, 0, len(raw.Apps))
		for _, app := range raw.Apps {
			keys := make(map[string]bool, len(app))
			for key := range app {
				keys[key] = true
			}
			appKeys = append(appKeys, keys)
		}
		if err := checkRequiredPresence(appKeys); err != nil {
			return nil, err
		}
	}

	return &ecosystem, nil
}

// requiredKeys must be spelled out for every app in strict mode
var requiredKeys = []string{
	"name", "script", "interpreter", "cwd",
	"autorestart", "max_memory_restart", "restart_delay", "exp_backoff_restart_delay",
	"instances", "exec_mode",
}

// yamlAppKeys lists the keys written for each app. Presence is checked on the
// node tree because defaults are indistinguishable from explicit values once decoded.
func yamlAppKeys(root *yaml.Node) ([]map[string]bool, error) {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	apps := mappingValue(doc, "apps")
	if apps == nil || apps.Kind != yaml.SequenceNode {
		return nil, errors.NewValidationError("ecosystem must contain an apps list", nil)
	}

	appKeys := make([]map[string]bool, 0, len(apps.Content))
	for _, app := range apps.Content {
		keys := make(map[string]bool)
		if app.Kind == yaml.MappingNode {
			for i := 0; i+1 < len(app.Content); i += 2 {
				keys[app.Content[i].Value] = true
			}
		}
		appKeys = append(appKeys, keys)
	}
	return appKeys, nil
}

func checkRequiredPresence(appKeys []map[string]bool) error {
	collection := errors.NewErrorCollection()
	for i, keys := range appKeys {
		for _, key := range requiredKeys {
			if !keys[key] {
				collection.Add(errors.NewValidationError(
					fmt.Sprintf("missing required field %q in app at index %d", key, i),
					nil,
				).WithContext("field", key).WithContext("app_index", strconv.Itoa(i)))
			}
		}
	}

	if collection.HasErrors() {
		return errors.NewValidationError("ecosystem is missing required fields", collection.ToError())
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// SetDefaults fills unset policy fields with the values the supervisor would use
func SetDefaults(ecosystem *Ecosystem) {
	for i := range ecosystem.Apps {
		app := &ecosystem.Apps[i]

		app.Name = strings.TrimSpace(app.Name)

		if app.AutoRestart == nil {
			autoRestart := true
			app.AutoRestart = &autoRestart
		}

		if app.Instances.IsZero() {
			app.Instances = NewInstances(1)
		}

		if app.ExecMode == "" {
			app.ExecMode = ExecModeFork
		} else {
			app.ExecMode = app.ExecMode.Normalize()
		}
	}
}
