package launchplan

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"github.com/core-tools/hsu-ecosystem-go/pkg/ecosystem"
	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
	"github.com/core-tools/hsu-ecosystem-go/pkg/logging"
	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"
	"github.com/core-tools/hsu-ecosystem-go/pkg/processfile"
	"github.com/core-tools/hsu-ecosystem-go/pkg/resourcelimits"
)

// Options describe the host the plan is computed for
type Options struct {
	// CPUs used to resolve "max" and negative instance counts; 0 means runtime.NumCPU
	CPUs int
	// Home is the supervisor home for pid and log files; empty means the default
	Home string
}

// Plan is what the external supervisor will do with an ecosystem.
// It is computed, never executed.
type Plan struct {
	// Home is the resolved supervisor home holding pid and log files
	Home string
	Apps []AppPlan
}

// AppPlan is the launch description of one app
type AppPlan struct {
	Name     string
	Command  []string // interpreter, script, args
	Dir      string
	Env      map[string]string
	ExecMode ecosystem.ExecMode

	Policy  processcontrol.RestartPolicy
	Restart processcontrol.RestartConfig

	// MemoryLimitBytes is 0 when no threshold is set
	MemoryLimitBytes int64
	// MemoryLimit is the compact spelling of the threshold, e.g. "0.5G" becomes "512M"
	MemoryLimit      string
	MemoryLimitHuman string

	OutLog   string
	ErrorLog string

	Instances []InstancePlan
}

// InstancePlan is one process copy of an app
type InstancePlan struct {
	Index   int
	Env     map[string]string
	PIDFile string
}

// Build computes the plan of a validated ecosystem
func Build(eco *ecosystem.Ecosystem, options Options, logger logging.Logger) (*Plan, error) {
	if eco == nil {
		return nil, errors.NewValidationError("ecosystem cannot be nil", nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	cpus := options.CPUs
	if cpus <= 0 {
		cpus = runtime.NumCPU()
	}

	files := processfile.NewProcessFileManager(processfile.ProcessFileConfig{Home: options.Home}, logger)

	plan := &Plan{Home: files.Home(), Apps: make([]AppPlan, 0, len(eco.Apps))}
	for _, app := range eco.Apps {
		appPlan := buildApp(app, cpus, files)
		logger.Debugf("Planned app, name: %s, instances: %d, exec_mode: %s",
			appPlan.Name, len(appPlan.Instances), appPlan.ExecMode)
		plan.Apps = append(plan.Apps, appPlan)
	}

	return plan, nil
}

func buildApp(app ecosystem.App, cpus int, files *processfile.ProcessFileManager) AppPlan {
	command := make([]string, 0, 2+len(app.Args))
	command = append(command, app.Interpreter, app.ScriptPath())
	command = append(command, app.Args...)

	env := make(map[string]string, len(app.Env))
	for k, v := range app.Env {
		env[k] = v
	}

	appPlan := AppPlan{
		Name:             app.Name,
		Command:          command,
		Dir:              app.Cwd,
		Env:              env,
		ExecMode:         app.ExecMode.Normalize(),
		Policy:           app.RestartPolicy(),
		Restart:          app.RestartConfig(),
		MemoryLimitBytes: app.MemoryLimitBytes(),
		OutLog:           files.OutLogPath(app.Name),
		ErrorLog:         files.ErrorLogPath(app.Name),
	}
	if appPlan.MemoryLimitBytes > 0 {
		appPlan.MemoryLimit = resourcelimits.MemorySizeFromBytes(appPlan.MemoryLimitBytes).String()
		appPlan.MemoryLimitHuman = app.MaxMemoryRestart.HumanSize()
	}
	if app.OutFile != "" {
		appPlan.OutLog = app.OutFile
	}
	if app.ErrorFile != "" {
		appPlan.ErrorLog = app.ErrorFile
	}

	count := app.Instances.Resolve(cpus)
	instanceVar := app.InstanceVarOrDefault()
	for i := 0; i < count; i++ {
		instanceEnv := make(map[string]string, len(env)+1)
		for k, v := range env {
			instanceEnv[k] = v
		}
		instanceEnv[instanceVar] = strconv.Itoa(i)

		pidFile := files.PIDFilePath(app.Name, i)
		if app.PIDFile != "" {
			pidFile = app.PIDFile
			if count > 1 {
				pidFile = processfile.InstancePath(app.PIDFile, i)
			}
		}

		appPlan.Instances = append(appPlan.Instances, InstancePlan{
			Index:   i,
			Env:     instanceEnv,
			PIDFile: pidFile,
		})
	}

	return appPlan
}

// TotalProcesses is the number of OS processes the supervisor will run
func (p *Plan) TotalProcesses() int {
	total := 0
	for _, app := range p.Apps {
		total += len(app.Instances)
	}
	return total
}

// App returns the plan of the named app
func (p *Plan) App(name string) (*AppPlan, bool) {
	for i := range p.Apps {
		if p.Apps[i].Name == name {
			return &p.Apps[i], true
		}
	}
	return nil, false
}

// Only returns a plan restricted to the named app
func (p *Plan) Only(name string) (*Plan, error) {
	app, ok := p.App(name)
	if !ok {
		return nil, errors.NewNotFoundError("app not found in ecosystem", nil).WithContext("app", name)
	}
	return &Plan{Home: p.Home, Apps: []AppPlan{*app}}, nil
}

// EnvList renders an environment map as sorted KEY=VALUE pairs
func EnvList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(list)
	return list
}
