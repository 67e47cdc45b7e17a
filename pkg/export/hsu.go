package export

import (
	"fmt"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/launchplan"
	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"
)

const (
	hsuDefaultPort      = 50055
	hsuDefaultLogLevel  = "info"
	hsuWaitDelay        = 10 * time.Second
	hsuManagementType   = "standard_managed"
	hsuProfileType      = "default"
	hsuMemoryPolicy     = "restart"
	hsuFixedBackoffRate = 1.0
)

// HSUConfig mirrors the hsu process manager configuration file
type HSUConfig struct {
	ProcessManager   HSUProcessManagerOptions `yaml:"process_manager"`
	ManagedProcesses []HSUProcessConfig       `yaml:"managed_processes"`
}

type HSUProcessManagerOptions struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level,omitempty"`
}

type HSUProcessConfig struct {
	ID          string        `yaml:"id"`
	Type        string        `yaml:"type"`
	ProfileType string        `yaml:"profile_type"`
	Enabled     bool          `yaml:"enabled"`
	Unit        HSUUnitConfig `yaml:"unit"`
}

type HSUUnitConfig struct {
	StandardManaged *HSUStandardManagedConfig `yaml:"standard_managed,omitempty"`
}

type HSUStandardManagedConfig struct {
	Metadata HSUMetadata      `yaml:"metadata"`
	Control  HSUControlConfig `yaml:"control"`
}

type HSUMetadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type HSUControlConfig struct {
	Execution           HSUExecutionConfig           `yaml:"execution"`
	RestartPolicy       processcontrol.RestartPolicy `yaml:"restart_policy"`
	ContextAwareRestart HSUContextAwareRestartConfig `yaml:"context_aware_restart"`
	Limits              *HSUResourceLimits           `yaml:"limits,omitempty"`
}

type HSUExecutionConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

type HSUContextAwareRestartConfig struct {
	Default            HSURestartConfig  `yaml:"default"`
	ResourceViolations *HSURestartConfig `yaml:"resource_violations,omitempty"`
	StartupGracePeriod time.Duration     `yaml:"startup_grace_period,omitempty"`
}

type HSURestartConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	BackoffRate float64       `yaml:"backoff_rate"`
}

type HSUResourceLimits struct {
	Memory HSUMemoryLimits `yaml:"memory"`
}

type HSUMemoryLimits struct {
	MaxRSS int64  `yaml:"max_rss"`
	Policy string `yaml:"policy"`
}

func toHSU(plan *launchplan.Plan) HSUConfig {
	config := HSUConfig{
		ProcessManager: HSUProcessManagerOptions{
			Port:     hsuDefaultPort,
			LogLevel: hsuDefaultLogLevel,
		},
		ManagedProcesses: []HSUProcessConfig{},
	}

	for _, app := range plan.Apps {
		restart := hsuRestartConfig(app.Restart)

		var limits *HSUResourceLimits
		if app.MemoryLimitBytes > 0 {
			limits = &HSUResourceLimits{
				Memory: HSUMemoryLimits{
					MaxRSS: app.MemoryLimitBytes,
					Policy: hsuMemoryPolicy,
				},
			}
		}

		for _, instance := range app.Instances {
			id := processName(app, instance)

			config.ManagedProcesses = append(config.ManagedProcesses, HSUProcessConfig{
				ID:          id,
				Type:        hsuManagementType,
				ProfileType: hsuProfileType,
				Enabled:     true,
				Unit: HSUUnitConfig{
					StandardManaged: &HSUStandardManagedConfig{
						Metadata: HSUMetadata{
							Name:        app.Name,
							Description: fmt.Sprintf("%s mode, instance %d of %d", app.ExecMode, instance.Index+1, len(app.Instances)),
						},
						Control: HSUControlConfig{
							Execution: HSUExecutionConfig{
								ExecutablePath:   app.Command[0],
								Args:             append([]string(nil), app.Command[1:]...),
								Environment:      launchplan.EnvList(instance.Env),
								WorkingDirectory: app.Dir,
								WaitDelay:        hsuWaitDelay,
							},
							RestartPolicy: app.Policy,
							ContextAwareRestart: HSUContextAwareRestartConfig{
								Default:            restart,
								ResourceViolations: resourceViolationRestart(restart, limits),
								StartupGracePeriod: app.Restart.MinUptime,
							},
							Limits: limits,
						},
					},
				},
			})
		}
	}

	return config
}

// hsuRestartConfig keeps the first delay and growth rate of the policy;
// hsu has no cap so the 15s ceiling is lost.
func hsuRestartConfig(restart processcontrol.RestartConfig) HSURestartConfig {
	if restart.UsesExpBackoff() {
		return HSURestartConfig{
			MaxRetries:  restart.MaxRestarts,
			RetryDelay:  restart.ExpBackoffBase,
			BackoffRate: restart.BackoffRate,
		}
	}
	return HSURestartConfig{
		MaxRetries:  restart.MaxRestarts,
		RetryDelay:  restart.RestartDelay,
		BackoffRate: hsuFixedBackoffRate,
	}
}

// resourceViolationRestart makes memory restarts immediate and unbounded,
// matching a supervisor that restarts on every threshold breach.
func resourceViolationRestart(restart HSURestartConfig, limits *HSUResourceLimits) *HSURestartConfig {
	if limits == nil {
		return nil
	}
	return &HSURestartConfig{
		MaxRetries:  0,
		RetryDelay:  restart.RetryDelay,
		BackoffRate: hsuFixedBackoffRate,
	}
}
