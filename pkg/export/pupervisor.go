package export

import (
	"github.com/core-tools/hsu-ecosystem-go/pkg/launchplan"
	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"
)

// PupervisorProcess is one entry of a pupervisor.yaml file
type PupervisorProcess struct {
	Name        string            `yaml:"name"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args,omitempty"`
	Directory   string            `yaml:"directory,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	AutoStart   bool              `yaml:"autostart"`
	AutoRestart bool              `yaml:"autorestart"`
	StartSecs   int               `yaml:"startsecs,omitempty"`
	StopSignal  string            `yaml:"stopsignal,omitempty"`
	StopTimeout int               `yaml:"stoptimeout,omitempty"`
	Stdout      string            `yaml:"stdout,omitempty"`
	Stderr      string            `yaml:"stderr,omitempty"`
}

type PupervisorConfig struct {
	Processes []PupervisorProcess `yaml:"processes"`
}

// toPupervisor flattens instances into separate programs because pupervisor
// has no notion of process copies. Memory limits and backoff have no equivalent.
func toPupervisor(plan *launchplan.Plan) PupervisorConfig {
	config := PupervisorConfig{Processes: []PupervisorProcess{}}

	for _, app := range plan.Apps {
		startSecs := int(app.Restart.MinUptime.Seconds())
		if startSecs < 1 {
			startSecs = 1
		}

		for _, instance := range app.Instances {
			name := processName(app, instance)

			config.Processes = append(config.Processes, PupervisorProcess{
				Name:        name,
				Command:     app.Command[0],
				Args:        append([]string(nil), app.Command[1:]...),
				Directory:   app.Dir,
				Environment: instance.Env,
				AutoStart:   true,
				AutoRestart: app.Policy == processcontrol.RestartAlways,
				StartSecs:   startSecs,
				StopSignal:  "SIGINT",
				StopTimeout: 2,
				Stdout:      app.OutLog,
				Stderr:      app.ErrorLog,
			})
		}
	}

	return config
}
