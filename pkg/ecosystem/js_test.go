package ecosystem

import (
	"testing"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripJSComments(t *testing.T) {
	source := `// header
module.exports = { /* inline */ apps: [
  { name: "a//b", script: 'x/*y*/z', cwd: "/srv" }, // trailing
] };`

	out := string(stripJSComments([]byte(source)))

	assert.NotContains(t, out, "header")
	assert.NotContains(t, out, "inline")
	assert.NotContains(t, out, "trailing")
	assert.Contains(t, out, `"a//b"`)
	assert.Contains(t, out, `'x/*y*/z'`)
}

func TestStripJSComments_EscapedQuote(t *testing.T) {
	out := string(stripJSComments([]byte(`{ a: "say \"hi\" // not a comment" }`)))
	assert.Contains(t, out, "// not a comment")
}

func TestParse_JS(t *testing.T) {
	source := `'use strict';
// PM2 ecosystem
module.exports = {
  apps: [
    {
      "name": "api",        // quoted key
      script: "main.py",
      interpreter: "python3",
      cwd: "/srv/api",
      env: { PORT: "8080", },
      instances: "max",
    },
  ],
};
`
	ecosystem, err := Parse([]byte(source), FormatJS, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, ecosystem.Apps, 1)

	app := ecosystem.Apps[0]
	assert.Equal(t, "api", app.Name)
	assert.Equal(t, map[string]string{"PORT": "8080"}, app.Env)
	assert.True(t, app.Instances.IsMax())
}

func TestParse_JSExportDefault(t *testing.T) {
	ecosystem, err := Parse([]byte(`export default { apps: [ { name: "a", script: "a.py", interpreter: "python3", cwd: "/tmp" } ] }`), FormatJS, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ecosystem.Names())
}

func TestExtractJSObject_Errors(t *testing.T) {
	_, err := extractJSObject([]byte(`module.exports = require("./apps");`))
	assert.Error(t, err)

	_, err = extractJSObject([]byte(`module.exports.apps = [];`))
	assert.Error(t, err)
}

func TestParse_JSLiteralSyntax(t *testing.T) {
	tests := []struct {
		name        string
		app         string
		expectError string
		validate    func(*testing.T, App)
	}{
		{
			name: "no space after colon",
			app:  `{ name:"a", script:"a.py", interpreter:"python3", cwd:"/tmp", instances:2 }`,
			validate: func(t *testing.T, app App) {
				assert.Equal(t, "a", app.Name)
				assert.Equal(t, "a.py", app.Script)
				assert.Equal(t, "python3", app.Interpreter)
				assert.Equal(t, "/tmp", app.Cwd)
				assert.Equal(t, 2, app.Instances.Count())
			},
		},
		{
			name: "single quotes with escapes",
			app:  `{ name: 'it\'s', script: 'C:\\srv\\a.py', interpreter: 'python3', cwd: '/tmp', env: { GREETING: 'say "hi"\n' } }`,
			validate: func(t *testing.T, app App) {
				assert.Equal(t, "it's", app.Name)
				assert.Equal(t, `C:\srv\a.py`, app.Script)
				assert.Equal(t, "say \"hi\"\n", app.Env["GREETING"])
			},
		},
		{
			name: "template string without substitutions",
			app:  "{ name: `a`, script: `a.py`, interpreter: `python3`, cwd: `/tmp` }",
			validate: func(t *testing.T, app App) {
				assert.Equal(t, "a", app.Name)
				assert.Equal(t, "a.py", app.Script)
			},
		},
		{
			name: "colons inside strings are kept",
			app:  `{ name:"a", script:"a.py", interpreter:"python3", cwd:"/tmp", args:"--listen=0.0.0.0:8080" }`,
			validate: func(t *testing.T, app App) {
				assert.Equal(t, Args{"--listen=0.0.0.0:8080"}, app.Args)
			},
		},
		{
			name: "unicode escapes",
			app:  `{ name: "caf\u00e9", script: "\x61.py", interpreter: "python3", cwd: "/tmp" }`,
			validate: func(t *testing.T, app App) {
				assert.Equal(t, "café", app.Name)
				assert.Equal(t, "a.py", app.Script)
			},
		},
		{
			name:        "template substitution",
			app:         "{ name: `${process.env.APP}`, script: \"a.py\", interpreter: \"python3\", cwd: \"/tmp\" }",
			expectError: "template literal substitutions are not supported",
		},
		{
			name:        "unterminated string",
			app:         "{ name: 'a,\n script: \"a.py\" }",
			expectError: "unterminated string literal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := "module.exports = { apps: [ " + tt.app + " ] };"

			ecosystem, err := Parse([]byte(source), FormatJS, LoadOptions{})

			if tt.expectError != "" {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				assert.Contains(t, err.Error(), "unsupported JS syntax")
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			require.NoError(t, err)
			require.Len(t, ecosystem.Apps, 1)
			require.NoError(t, ValidateEcosystem(ecosystem, ValidateOptions{}))
			tt.validate(t, ecosystem.Apps[0])
		})
	}
}

func TestParse_JSErrorLine(t *testing.T) {
	source := "// header\nmodule.exports = {\n  apps: [\n    { name: `${x}` }\n  ]\n};\n"

	_, err := Parse([]byte(source), FormatJS, LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line=4")
}
