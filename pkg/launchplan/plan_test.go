package launchplan

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/ecosystem"
	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
apps:
  - name: ModemAPI
    script: ModemApi.py
    interpreter: /opt/modem/venv/bin/python
    cwd: /opt/modem
    autorestart: true
    max_memory_restart: 500M
    restart_delay: 3000
    exp_backoff_restart_delay: 1000
    instances: 1
    exec_mode: fork
  - name: workers
    script: /opt/workers/run.py
    interpreter: python3
    cwd: /opt/workers
    args: --queue default
    env:
      MODE: prod
    instances: max
    instance_var: WORKER_ID
    pid_file: /run/workers.pid
    autorestart: false
`

func loadSample(t *testing.T) *ecosystem.Ecosystem {
	t.Helper()
	eco, err := ecosystem.Parse([]byte(sampleYAML), ecosystem.FormatYAML, ecosystem.LoadOptions{})
	require.NoError(t, err)
	require.NoError(t, ecosystem.ValidateEcosystem(eco, ecosystem.ValidateOptions{}))
	return eco
}

func TestBuild(t *testing.T) {
	plan, err := Build(loadSample(t), Options{CPUs: 4, Home: "/home/ops/.pm2"}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Apps, 2)
	assert.Equal(t, 5, plan.TotalProcesses())

	modem, ok := plan.App("ModemAPI")
	require.True(t, ok)
	assert.Equal(t, []string{"/opt/modem/venv/bin/python", filepath.Join("/opt/modem", "ModemApi.py")}, modem.Command)
	assert.Equal(t, "/opt/modem", modem.Dir)
	assert.Equal(t, ecosystem.ExecModeFork, modem.ExecMode)
	assert.Equal(t, processcontrol.RestartAlways, modem.Policy)
	assert.Equal(t, int64(500*1024*1024), modem.MemoryLimitBytes)
	assert.Equal(t, "500M", modem.MemoryLimit)
	assert.Equal(t, "500MiB", modem.MemoryLimitHuman)
	assert.Equal(t, "/home/ops/.pm2", plan.Home)
	assert.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond, 2250 * time.Millisecond}, modem.Restart.Schedule(3))
	assert.Equal(t, filepath.Join("/home/ops/.pm2", "logs", "ModemAPI-out.log"), modem.OutLog)
	assert.Equal(t, filepath.Join("/home/ops/.pm2", "logs", "ModemAPI-error.log"), modem.ErrorLog)
	require.Len(t, modem.Instances, 1)
	assert.Equal(t, map[string]string{"NODE_APP_INSTANCE": "0"}, modem.Instances[0].Env)
	assert.Equal(t, filepath.Join("/home/ops/.pm2", "pids", "ModemAPI-0.pid"), modem.Instances[0].PIDFile)

	workers, ok := plan.App("workers")
	require.True(t, ok)
	assert.Equal(t, []string{"python3", "/opt/workers/run.py", "--queue", "default"}, workers.Command)
	assert.Equal(t, processcontrol.RestartNever, workers.Policy)
	assert.Equal(t, int64(0), workers.MemoryLimitBytes)
	require.Len(t, workers.Instances, 4)
	for i, instance := range workers.Instances {
		assert.Equal(t, i, instance.Index)
		assert.Equal(t, "prod", instance.Env["MODE"])
		assert.Equal(t, []string{"MODE=prod", "WORKER_ID=" + string(rune('0'+i))}, EnvList(instance.Env))
	}
	assert.Equal(t, "/run/workers-2.pid", workers.Instances[2].PIDFile)
	assert.Equal(t, map[string]string{"MODE": "prod"}, workers.Env)

	_, ok = plan.App("missing")
	assert.False(t, ok)
}

func TestBuild_DefaultCPUs(t *testing.T) {
	plan, err := Build(loadSample(t), Options{Home: t.TempDir()}, nil)
	require.NoError(t, err)

	workers, _ := plan.App("workers")
	assert.NotEmpty(t, workers.Instances)
}

func TestBuild_Nil(t *testing.T) {
	_, err := Build(nil, Options{}, nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	plan, err := Build(loadSample(t), Options{CPUs: 2, Home: "/home/ops/.pm2"}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, plan.Describe(&buf))

	out := buf.String()
	assert.Contains(t, out, "APP")
	assert.Contains(t, out, "ModemAPI")
	assert.Contains(t, out, "backoff from 1s")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "500M (500MiB)")
	assert.Contains(t, out, "delays:     1s, 1.5s, 2.25s, 3.375s, 5.063s, ...")
	assert.Contains(t, out, "give up:    after 16 restarts shorter than 1s")
	assert.Contains(t, out, "2 app(s), 3 process(es), home: /home/ops/.pm2")
}

func TestPlan_Only(t *testing.T) {
	plan, err := Build(loadSample(t), Options{CPUs: 2, Home: "/home/ops/.pm2"}, nil)
	require.NoError(t, err)

	only, err := plan.Only("workers")
	require.NoError(t, err)
	require.Len(t, only.Apps, 1)
	assert.Equal(t, "workers", only.Apps[0].Name)
	assert.Equal(t, plan.Home, only.Home)
	assert.Equal(t, 2, only.TotalProcesses())

	_, err = plan.Only("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestBuild_NormalizesMemoryLimit(t *testing.T) {
	eco, err := ecosystem.Parse([]byte(`apps:
  - name: api
    script: server.js
    interpreter: node
    cwd: /srv/api
    max_memory_restart: 0.5G
`), ecosystem.FormatYAML, ecosystem.LoadOptions{})
	require.NoError(t, err)

	plan, err := Build(eco, Options{CPUs: 1, Home: "/tmp/pm2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), plan.Apps[0].MemoryLimitBytes)
	assert.Equal(t, "512M", plan.Apps[0].MemoryLimit)
}
