package ecosystem

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/processcontrol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInstances_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		instances Instances
		cpus      int
		expected  int
	}{
		{"unset", Instances{}, 8, 1},
		{"fixed", NewInstances(3), 8, 3},
		{"zero means max", NewInstances(0), 8, 8},
		{"max", MaxInstances(), 4, 4},
		{"all but one", NewInstances(-1), 4, 3},
		{"never below one", NewInstances(-10), 4, 1},
		{"unknown cpu count", MaxInstances(), 0, 1},
		{"fixed count capped", NewInstances(MaxInstanceCount + 1), 8, MaxInstanceCount},
		{"cpu count capped", MaxInstances(), 1 << 20, MaxInstanceCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.instances.Resolve(tt.cpus))
		})
	}
}

func TestInstances_Decode(t *testing.T) {
	var doc struct {
		A Instances `yaml:"a"`
		B Instances `yaml:"b"`
		C Instances `yaml:"c"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 2\nb: MAX\n"), &doc))
	assert.Equal(t, "2", doc.A.String())
	assert.True(t, doc.B.IsMax())
	assert.True(t, doc.C.IsZero())
	assert.Equal(t, "", doc.C.String())

	var jsonDoc struct {
		A Instances `json:"a"`
		B Instances `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": -2, "b": "max"}`), &jsonDoc))
	assert.Equal(t, -2, jsonDoc.A.Count())
	assert.True(t, jsonDoc.B.IsMax())
	assert.Error(t, json.Unmarshal([]byte(`{"a": "some"}`), &jsonDoc))
	assert.Error(t, json.Unmarshal([]byte(`{"a": [1]}`), &jsonDoc))
}

func TestArgs_JSON(t *testing.T) {
	var doc struct {
		A Args `json:"a"`
		B Args `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": "-v  --once", "b": ["x y"]}`), &doc))
	assert.Equal(t, Args{"-v", "--once"}, doc.A)
	assert.Equal(t, Args{"x y"}, doc.B)
	assert.Error(t, json.Unmarshal([]byte(`{"a": 3}`), &doc))
}

func TestExecMode_Normalize(t *testing.T) {
	assert.Equal(t, ExecModeFork, ExecMode("fork_mode").Normalize())
	assert.Equal(t, ExecModeCluster, ExecMode(" Cluster_Mode ").Normalize())
	assert.Equal(t, ExecModeCluster, ExecMode("cluster").Normalize())
	assert.False(t, ExecMode("threads").IsValid())
}

func TestApp_RestartConfig(t *testing.T) {
	app := validApp("modem")
	app.MaxRestarts = int64Ptr(3)

	config := app.RestartConfig()

	assert.Equal(t, 3*time.Second, config.RestartDelay)
	assert.Equal(t, time.Second, config.ExpBackoffBase)
	assert.Equal(t, 3, config.MaxRestarts)
	assert.Equal(t, processcontrol.DefaultMinUptime, config.MinUptime)
	assert.Equal(t, processcontrol.RestartAlways, app.RestartPolicy())

	disabled := false
	app.AutoRestart = &disabled
	assert.Equal(t, processcontrol.RestartNever, app.RestartPolicy())
}

func TestEcosystem_App(t *testing.T) {
	ecosystem := &Ecosystem{Apps: []App{validApp("a"), validApp("b")}}

	app, ok := ecosystem.App("b")
	require.True(t, ok)
	assert.Equal(t, "b", app.Name)

	_, ok = ecosystem.App("c")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, ecosystem.Names())
}
