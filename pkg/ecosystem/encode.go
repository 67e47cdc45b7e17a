package ecosystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"

	"gopkg.in/yaml.v3"
)

// bareKey matches JSON object keys that are valid JavaScript identifiers
var bareKey = regexp.MustCompile(`(?m)^(\s*)"([A-Za-z_$][A-Za-z0-9_$]*)":`)

// Encode writes the ecosystem in the given format
func Encode(w io.Writer, ecosystem *Ecosystem, format Format) error {
	if ecosystem == nil {
		return errors.NewValidationError("ecosystem cannot be nil", nil)
	}

	var err error
	switch format {
	case FormatYAML:
		err = encodeYAML(w, ecosystem)
	case FormatJSON:
		err = encodeJSON(w, ecosystem)
	case FormatJS:
		err = encodeJS(w, ecosystem)
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported ecosystem format: %s", format), nil)
	}
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("failed to encode %s ecosystem", format), err)
	}
	return nil
}

func encodeYAML(w io.Writer, ecosystem *Ecosystem) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(ecosystem); err != nil {
		return err
	}
	return encoder.Close()
}

func marshalJSON(ecosystem *Ecosystem) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ecosystem); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSON(w io.Writer, ecosystem *Ecosystem) error {
	data, err := marshalJSON(ecosystem)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// encodeJS writes the CommonJS form the supervisor loads natively
func encodeJS(w io.Writer, ecosystem *Ecosystem) error {
	data, err := marshalJSON(ecosystem)
	if err != nil {
		return err
	}
	data = bareKey.ReplaceAll(bytes.TrimSpace(data), []byte("$1$2:"))

	if _, err := io.WriteString(w, "module.exports = "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, ";\n")
	return err
}
