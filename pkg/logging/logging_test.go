package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	lines []string
}

func (r *recorder) fn(level string) LogFunc {
	return func(format string, args ...interface{}) {
		r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
	}
}

func TestNewLogger_Prefix(t *testing.T) {
	rec := &recorder{}
	logger := NewLogger("module: ecoctl , ", LogFuncs{
		Debugf: rec.fn("D"),
		Infof:  rec.fn("I"),
		Warnf:  rec.fn("W"),
		Errorf: rec.fn("E"),
	})

	logger.Infof("loaded %d apps", 2)
	logger.Errorf("bad %s", "cwd")

	assert.Equal(t, []string{
		"I module: ecoctl , loaded 2 apps",
		"E module: ecoctl , bad cwd",
	}, rec.lines)
}

func TestLogLevelf(t *testing.T) {
	rec := &recorder{}
	logger := NewLogger("", LogFuncs{
		Debugf: rec.fn("D"),
		Infof:  rec.fn("I"),
		Warnf:  rec.fn("W"),
		Errorf: rec.fn("E"),
	})

	logger.LogLevelf(LevelDebug, "a")
	logger.LogLevelf(LevelWarn, "b")
	logger.LogLevelf(42, "c")

	assert.Equal(t, []string{"D a", "W b", "I c"}, rec.lines)
}

func TestNewLogger_NilFuncs(t *testing.T) {
	logger := NewLogger("x", LogFuncs{})
	assert.NotPanics(t, func() {
		logger.Debugf("ignored")
		logger.Errorf("ignored")
	})
}

func TestNullLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNullLogger().Infof("nothing %d", 1)
	})
}
