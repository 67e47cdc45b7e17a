package ecosystem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
)

var jsExportPrefixes = [][]byte{
	[]byte("module.exports"),
	[]byte("export default"),
}

// extractJSObject returns the object literal exported by an ecosystem.config.js file,
// rewritten as a YAML flow mapping. Only a literal is supported: keys may be bare or
// quoted, trailing commas are fine, but expressions (require calls, process.env
// lookups) are read as plain strings.
func extractJSObject(data []byte) ([]byte, error) {
	source := stripJSComments(data)

	start := -1
	for _, prefix := range jsExportPrefixes {
		if idx := bytes.Index(source, prefix); idx >= 0 {
			rest := bytes.TrimLeft(source[idx+len(prefix):], " \t\r\n")
			if bytes.Equal(prefix, jsExportPrefixes[0]) {
				if len(rest) == 0 || rest[0] != '=' {
					continue
				}
				rest = bytes.TrimLeft(rest[1:], " \t\r\n")
			}
			start = len(source) - len(rest)
			break
		}
	}
	if start < 0 {
		return nil, errors.NewValidationError("no module.exports or export default found in ecosystem script", nil)
	}

	literal := bytes.TrimSpace(source[start:])
	literal = bytes.TrimRight(literal, "; \t\r\n")
	if len(literal) == 0 || literal[0] != '{' || literal[len(literal)-1] != '}' {
		return nil, errors.NewValidationError("ecosystem script must export an object literal", nil)
	}

	firstLine := 1 + bytes.Count(source[:start], []byte("\n"))
	return normalizeJSLiteral(literal, firstLine)
}

// normalizeJSLiteral rewrites every string literal ('...', "...", `...`) as a
// double-quoted string and puts a space after each colon outside strings, so that
// `name:"a"` reads as a key/value pair in YAML flow syntax.
func normalizeJSLiteral(literal []byte, firstLine int) ([]byte, error) {
	out := make([]byte, 0, len(literal)+len(literal)/8)
	line := firstLine

	for i := 0; i < len(literal); i++ {
		c := literal[i]
		switch c {
		case '"', '\'', '`':
			value, end, err := readJSString(literal, i)
			if err != nil {
				return nil, errors.NewValidationError("unsupported JS syntax in ecosystem script", err).
					WithContext("line", strconv.Itoa(line))
			}
			quoted, err := json.Marshal(value)
			if err != nil {
				return nil, errors.NewValidationError("unsupported JS syntax in ecosystem script", err).
					WithContext("line", strconv.Itoa(line))
			}
			out = append(out, quoted...)
			line += bytes.Count(literal[i:end+1], []byte("\n"))
			i = end
		case ':':
			out = append(out, c)
			if i+1 < len(literal) && !isJSSpace(literal[i+1]) {
				out = append(out, ' ')
			}
		case '\n':
			line++
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}

	return out, nil
}

func isJSSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// readJSString decodes the string literal opening at data[start] and returns its
// value and the index of the closing quote.
func readJSString(data []byte, start int) (string, int, error) {
	quote := data[start]
	var sb strings.Builder

	for i := start + 1; i < len(data); i++ {
		c := data[i]
		switch {
		case c == quote:
			return sb.String(), i, nil
		case c == '\n' && quote != '`':
			return "", 0, fmt.Errorf("unterminated string literal")
		case c == '$' && quote == '`' && i+1 < len(data) && data[i+1] == '{':
			return "", 0, fmt.Errorf("template literal substitutions are not supported")
		case c == '\\':
			if i+1 >= len(data) {
				return "", 0, fmt.Errorf("unterminated string literal")
			}
			i++
			n, err := writeJSEscape(&sb, data, i)
			if err != nil {
				return "", 0, err
			}
			i += n
		default:
			sb.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

// writeJSEscape decodes the escape sequence whose letter is data[i] and returns
// how many extra bytes it consumed.
func writeJSEscape(sb *strings.Builder, data []byte, i int) (int, error) {
	switch c := data[i]; c {
	case 'n':
		sb.WriteByte('\n')
	case 't':
		sb.WriteByte('\t')
	case 'r':
		sb.WriteByte('\r')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	case '\n':
		// line continuation
	case '\r':
		if i+1 < len(data) && data[i+1] == '\n' {
			return 1, nil
		}
	case 'x':
		if i+2 >= len(data) {
			return 0, fmt.Errorf("invalid \\x escape")
		}
		v, err := strconv.ParseUint(string(data[i+1:i+3]), 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid \\x escape: %w", err)
		}
		sb.WriteRune(rune(v))
		return 2, nil
	case 'u':
		if i+1 < len(data) && data[i+1] == '{' {
			end := bytes.IndexByte(data[i+1:], '}')
			if end < 0 {
				return 0, fmt.Errorf("invalid \\u escape")
			}
			v, err := strconv.ParseUint(string(data[i+2:i+1+end]), 16, 32)
			if err != nil {
				return 0, fmt.Errorf("invalid \\u escape: %w", err)
			}
			sb.WriteRune(rune(v))
			return end + 1, nil
		}
		if i+4 >= len(data) {
			return 0, fmt.Errorf("invalid \\u escape")
		}
		v, err := strconv.ParseUint(string(data[i+1:i+5]), 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid \\u escape: %w", err)
		}
		sb.WriteRune(rune(v))
		return 4, nil
	default:
		// \', \", \`, \\ and unknown escapes stand for the character itself
		sb.WriteByte(c)
	}
	return 0, nil
}

// stripJSComments removes // and /* */ comments that are not inside string literals.
// Newlines are kept so that decoder line numbers still point at the source.
func stripJSComments(data []byte) []byte {
	out := make([]byte, 0, len(data))
	var quote byte

	for i := 0; i < len(data); i++ {
		c := data[i]

		if quote != 0 {
			out = append(out, c)
			switch {
			case c == '\\' && i+1 < len(data):
				i++
				out = append(out, data[i])
			case c == quote:
				quote = 0
			}
			continue
		}

		switch {
		case c == '"' || c == '\'' || c == '`':
			quote = c
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i < len(data) && !(data[i] == '*' && i+1 < len(data) && data[i+1] == '/') {
				if data[i] == '\n' {
					out = append(out, '\n')
				}
				i++
			}
			i++ // skip the closing '/'
		default:
			out = append(out, c)
		}
	}

	return out
}
