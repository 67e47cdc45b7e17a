package ecosystem

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"
	"github.com/core-tools/hsu-ecosystem-go/pkg/resourcelimits"

	"gopkg.in/yaml.v3"
)

// Ecosystem represents the top-level ecosystem file structure
type Ecosystem struct {
	Apps []App `yaml:"apps" json:"apps"`
}

// App describes one application managed by the supervisor
type App struct {
	Name        string            `yaml:"name" json:"name"`
	Script      string            `yaml:"script" json:"script"`
	Interpreter string            `yaml:"interpreter" json:"interpreter"`
	Cwd         string            `yaml:"cwd" json:"cwd"`
	Args        Args              `yaml:"args,omitempty" json:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Delays and uptime are milliseconds
	AutoRestart            *bool                      `yaml:"autorestart,omitempty" json:"autorestart,omitempty"`
	MaxMemoryRestart       *resourcelimits.MemorySize `yaml:"max_memory_restart,omitempty" json:"max_memory_restart,omitempty"`
	RestartDelay           *int64                     `yaml:"restart_delay,omitempty" json:"restart_delay,omitempty"`
	ExpBackoffRestartDelay *int64                     `yaml:"exp_backoff_restart_delay,omitempty" json:"exp_backoff_restart_delay,omitempty"`
	MaxRestarts            *int64                     `yaml:"max_restarts,omitempty" json:"max_restarts,omitempty"`
	MinUptime              *int64                     `yaml:"min_uptime,omitempty" json:"min_uptime,omitempty"`

	Instances   Instances `yaml:"instances,omitempty" json:"instances,omitempty"`
	ExecMode    ExecMode  `yaml:"exec_mode,omitempty" json:"exec_mode,omitempty"`
	InstanceVar string    `yaml:"instance_var,omitempty" json:"instance_var,omitempty"`

	OutFile   string `yaml:"out_file,omitempty" json:"out_file,omitempty"`
	ErrorFile string `yaml:"error_file,omitempty" json:"error_file,omitempty"`
	PIDFile   string `yaml:"pid_file,omitempty" json:"pid_file,omitempty"`
}

// ExecMode is the process topology the supervisor uses for an app
type ExecMode string

const (
	ExecModeFork    ExecMode = "fork"
	ExecModeCluster ExecMode = "cluster"
)

const DefaultInstanceVar = "NODE_APP_INSTANCE"

// MaxInstanceCount bounds the process copies of one app
const MaxInstanceCount = 4096

// Normalize maps the supervisor's long spellings ("fork_mode") to the short ones
func (m ExecMode) Normalize() ExecMode {
	mode := ExecMode(strings.ToLower(strings.TrimSpace(string(m))))
	switch mode {
	case "fork_mode":
		return ExecModeFork
	case "cluster_mode":
		return ExecModeCluster
	}
	return mode
}

func (m ExecMode) IsValid() bool {
	switch m.Normalize() {
	case ExecModeFork, ExecModeCluster:
		return true
	}
	return false
}

// Instances is the requested number of process copies. Besides a positive count it
// accepts "max" (or 0) for one copy per CPU and -n for all CPUs but n.
type Instances struct {
	count int
	max   bool
	set   bool
}

func NewInstances(count int) Instances {
	if count == 0 {
		return MaxInstances()
	}
	return Instances{count: count, set: true}
}

func MaxInstances() Instances {
	return Instances{max: true, set: true}
}

func (i Instances) IsZero() bool {
	return !i.set
}

func (i Instances) IsMax() bool {
	return i.max
}

// Count returns the literal count; meaningful only when not IsMax
func (i Instances) Count() int {
	if !i.set {
		return 1
	}
	return i.count
}

// Resolve returns the number of processes to launch on a host with cpus CPUs,
// never more than MaxInstanceCount
func (i Instances) Resolve(cpus int) int {
	if cpus < 1 {
		cpus = 1
	}
	if cpus > MaxInstanceCount {
		cpus = MaxInstanceCount
	}
	switch {
	case !i.set:
		return 1
	case i.max:
		return cpus
	case i.count < 0:
		if n := cpus + i.count; n > 1 {
			return n
		}
		return 1
	case i.count > MaxInstanceCount:
		return MaxInstanceCount
	default:
		return i.count
	}
}

func (i Instances) String() string {
	switch {
	case !i.set:
		return ""
	case i.max:
		return "max"
	default:
		return strconv.Itoa(i.count)
	}
}

func parseInstances(value string) (Instances, error) {
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "max") {
		return MaxInstances(), nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return Instances{}, fmt.Errorf("instances must be an integer or \"max\", got %q", value)
	}
	return NewInstances(n), nil
}

func (i *Instances) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: instances must be a scalar", node.Line)
	}
	parsed, err := parseInstances(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*i = parsed
	return nil
}

func (i Instances) MarshalYAML() (interface{}, error) {
	if !i.set {
		return 1, nil
	}
	if i.max {
		return "max", nil
	}
	return i.count, nil
}

func (i *Instances) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := parseInstances(s)
		if err != nil {
			return err
		}
		*i = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("instances must be an integer or \"max\": %w", err)
	}
	*i = NewInstances(n)
	return nil
}

func (i Instances) MarshalJSON() ([]byte, error) {
	if !i.set {
		return json.Marshal(1)
	}
	if i.max {
		return json.Marshal("max")
	}
	return json.Marshal(i.count)
}

// Args accepts either a list or a single space separated string
type Args []string

func (a *Args) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*a = strings.Fields(node.Value)
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*a = list
		return nil
	default:
		return fmt.Errorf("line %d: args must be a string or a list of strings", node.Line)
	}
}

func (a *Args) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = strings.Fields(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("args must be a string or a list of strings: %w", err)
	}
	*a = list
	return nil
}

// AutoRestartEnabled defaults to true when unset
func (a App) AutoRestartEnabled() bool {
	return a.AutoRestart == nil || *a.AutoRestart
}

func millis(v *int64, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Millisecond
}

func (a App) RestartDelayDuration() time.Duration {
	return millis(a.RestartDelay, 0)
}

func (a App) ExpBackoffRestartDelayDuration() time.Duration {
	return millis(a.ExpBackoffRestartDelay, 0)
}

func (a App) MinUptimeDuration() time.Duration {
	return millis(a.MinUptime, processcontrol.DefaultMinUptime)
}

func (a App) MaxRestartsOrDefault() int {
	if a.MaxRestarts == nil {
		return processcontrol.DefaultMaxRestarts
	}
	return int(*a.MaxRestarts)
}

func (a App) InstanceVarOrDefault() string {
	if a.InstanceVar == "" {
		return DefaultInstanceVar
	}
	return a.InstanceVar
}

// MemoryLimitBytes returns 0 when no threshold is configured or it does not parse
func (a App) MemoryLimitBytes() int64 {
	if a.MaxMemoryRestart == nil || !a.MaxMemoryRestart.IsSet() {
		return 0
	}
	bytes, err := a.MaxMemoryRestart.Bytes()
	if err != nil {
		return 0
	}
	return bytes
}

// ScriptPath resolves a relative script against the app's working directory
func (a App) ScriptPath() string {
	if a.Script == "" || filepath.IsAbs(a.Script) || a.Cwd == "" {
		return a.Script
	}
	return filepath.Join(a.Cwd, a.Script)
}

// RestartConfig converts the app's restart fields to the supervisor's policy
func (a App) RestartConfig() processcontrol.RestartConfig {
	config := processcontrol.NewRestartConfig(a.RestartDelayDuration(), a.ExpBackoffRestartDelayDuration())
	config.MaxRestarts = a.MaxRestartsOrDefault()
	config.MinUptime = a.MinUptimeDuration()
	return config
}

func (a App) RestartPolicy() processcontrol.RestartPolicy {
	if a.AutoRestartEnabled() {
		return processcontrol.RestartAlways
	}
	return processcontrol.RestartNever
}

// App returns the app with the given name
func (e *Ecosystem) App(name string) (*App, bool) {
	for i := range e.Apps {
		if e.Apps[i].Name == name {
			return &e.Apps[i], true
		}
	}
	return nil, false
}

func (e *Ecosystem) Names() []string {
	names := make([]string, 0, len(e.Apps))
	for _, app := range e.Apps {
		names = append(names, app.Name)
	}
	return names
}
