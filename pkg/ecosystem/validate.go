package ecosystem

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
)

// ValidateOptions selects the optional checks
type ValidateOptions struct {
	// CheckPaths stats script, interpreter and cwd on the local filesystem
	CheckPaths bool
}

// reservedNames are interpreted by the supervisor CLI as selectors, not app names
var reservedNames = map[string]bool{
	"all": true,
}

// clusterInterpreters are the runtimes the supervisor can run in cluster mode
var clusterInterpreters = map[string]bool{
	"node":   true,
	"nodejs": true,
	"bun":    true,
}

// ValidateEcosystem validates the entire ecosystem and reports every problem found
func ValidateEcosystem(ecosystem *Ecosystem, options ValidateOptions) error {
	if ecosystem == nil {
		return errors.NewValidationError("ecosystem cannot be nil", nil)
	}
	if len(ecosystem.Apps) == 0 {
		return errors.NewValidationError("ecosystem must define at least one app", nil)
	}

	collection := errors.NewErrorCollection()

	seenNames := make(map[string]int)
	for i, app := range ecosystem.Apps {
		if app.Name != "" {
			if prevIndex, exists := seenNames[app.Name]; exists {
				collection.Add(errors.NewValidationError(
					fmt.Sprintf("duplicate app name '%s' found at indices %d and %d", app.Name, prevIndex, i),
					nil,
				).WithContext("app", app.Name))
			} else {
				seenNames[app.Name] = i
			}
		}

		for _, err := range ValidateApp(app, options) {
			collection.Add(errors.NewValidationError(
				fmt.Sprintf("invalid app at index %d", i),
				err,
			).WithContext("app", appLabel(app, i)))
		}
	}

	if collection.HasErrors() {
		return errors.NewValidationError(
			fmt.Sprintf("ecosystem has %d problem(s)", collection.Len()),
			collection.ToError(),
		)
	}
	return nil
}

func appLabel(app App, index int) string {
	if app.Name != "" {
		return app.Name
	}
	return "#" + strconv.Itoa(index)
}

// ValidateApp returns one error per failing field
func ValidateApp(app App, options ValidateOptions) []error {
	var problems []error
	add := func(field, message string, cause error) {
		problems = append(problems, errors.NewValidationError(message, cause).WithContext("field", field))
	}

	required := []struct {
		field string
		value string
	}{
		{"name", app.Name},
		{"script", app.Script},
		{"interpreter", app.Interpreter},
		{"cwd", app.Cwd},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			add(r.field, fmt.Sprintf("%s is required", r.field), nil)
		}
	}

	if err := ValidateAppName(app.Name); err != nil && strings.TrimSpace(app.Name) != "" {
		add("name", "invalid app name", err)
	}

	if app.MaxMemoryRestart != nil {
		if _, err := app.MaxMemoryRestart.Bytes(); err != nil {
			add("max_memory_restart", "max_memory_restart is not a valid size", err)
		}
	}

	nonNegative := []struct {
		field string
		value *int64
	}{
		{"restart_delay", app.RestartDelay},
		{"exp_backoff_restart_delay", app.ExpBackoffRestartDelay},
		{"max_restarts", app.MaxRestarts},
		{"min_uptime", app.MinUptime},
	}
	for _, n := range nonNegative {
		if n.value != nil && *n.value < 0 {
			add(n.field, fmt.Sprintf("%s must be a non-negative integer, got %d", n.field, *n.value), nil)
		}
	}

	if !app.Instances.IsMax() && app.Instances.Count() > MaxInstanceCount {
		add("instances", fmt.Sprintf("instances must be at most %d, got %d", MaxInstanceCount, app.Instances.Count()), nil)
	}

	if !app.ExecMode.IsValid() {
		add("exec_mode", fmt.Sprintf("unsupported exec mode: %s", app.ExecMode), nil)
	} else if app.ExecMode.Normalize() == ExecModeCluster && app.Interpreter != "" && !IsClusterInterpreter(app.Interpreter) {
		add("exec_mode", fmt.Sprintf("cluster mode requires a Node.js interpreter, got %s", app.Interpreter), nil)
	}

	if app.InstanceVar != "" && strings.ContainsAny(app.InstanceVar, "= \t") {
		add("instance_var", fmt.Sprintf("invalid environment variable name: %q", app.InstanceVar), nil)
	}
	for key := range app.Env {
		if key == "" || strings.ContainsAny(key, "= \t") {
			add("env", fmt.Sprintf("invalid environment variable name: %q", key), nil)
		}
	}

	if options.CheckPaths {
		problems = append(problems, checkAppPaths(app)...)
	}

	return problems
}

// ValidateAppName rejects names the supervisor would read as an id or selector
func ValidateAppName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError("app name cannot be empty", nil)
	}
	if reservedNames[strings.ToLower(name)] {
		return errors.NewValidationError(fmt.Sprintf("app name '%s' is reserved", name), nil)
	}
	if _, err := strconv.Atoi(name); err == nil {
		return errors.NewValidationError(fmt.Sprintf("app name '%s' cannot be numeric", name), nil)
	}
	return nil
}

// IsClusterInterpreter reports whether the interpreter is a Node.js compatible runtime
func IsClusterInterpreter(interpreter string) bool {
	base := strings.ToLower(filepath.Base(interpreter))
	base = strings.TrimSuffix(base, ".exe")
	return clusterInterpreters[base]
}

func checkAppPaths(app App) []error {
	var problems []error
	add := func(field string, err error) {
		if domainErr, ok := err.(*errors.DomainError); ok {
			domainErr.WithContext("field", field)
		}
		problems = append(problems, err)
	}

	if app.Cwd != "" {
		if err := checkDirectory(app.Cwd); err != nil {
			add("cwd", err)
		}
	}
	if app.Script != "" {
		if err := checkRegularFile(app.ScriptPath()); err != nil {
			add("script", err)
		}
	}
	if app.Interpreter != "" {
		if err := checkInterpreter(app.Interpreter); err != nil {
			add("interpreter", err)
		}
	}

	return problems
}

func statError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.NewNotFoundError("path does not exist", err).WithContext("path", path)
	case os.IsPermission(err):
		return errors.NewPermissionError("path is not accessible", err).WithContext("path", path)
	default:
		return errors.NewIOError("failed to stat path", err).WithContext("path", path)
	}
}

func checkDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return statError(path, err)
	}
	if !info.IsDir() {
		return errors.NewValidationError("path is not a directory", nil).WithContext("path", path)
	}
	return nil
}

func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return statError(path, err)
	}
	if !info.Mode().IsRegular() {
		return errors.NewValidationError("path is not a regular file", nil).WithContext("path", path)
	}
	return nil
}

// checkInterpreter accepts an executable path, or a bare command found on PATH
func checkInterpreter(interpreter string) error {
	if !strings.ContainsRune(interpreter, os.PathSeparator) && !strings.ContainsRune(interpreter, '/') {
		if _, err := exec.LookPath(interpreter); err != nil {
			return errors.NewNotFoundError("interpreter not found on PATH", err).WithContext("path", interpreter)
		}
		return nil
	}

	if err := checkRegularFile(interpreter); err != nil {
		return err
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(interpreter)
		if err != nil {
			return statError(interpreter, err)
		}
		if info.Mode().Perm()&0o111 == 0 {
			return errors.NewPermissionError("interpreter is not executable", nil).WithContext("path", interpreter)
		}
	}
	return nil
}
