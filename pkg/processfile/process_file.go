package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
	"github.com/core-tools/hsu-ecosystem-go/pkg/logging"
)

const (
	HomeEnvVar      = "PM2_HOME"
	DefaultHomeName = ".pm2"
	PIDsSubdir      = "pids"
	LogsSubdir      = "logs"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// ProcessFileConfig locates the supervisor's home directory
type ProcessFileConfig struct {
	// Home is the supervisor home; empty means $PM2_HOME, then ~/.pm2
	Home string
}

// ProcessFileManager computes where the supervisor keeps pid and log files
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	if config.Home == "" {
		config.Home = DefaultHome()
	}
	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// DefaultHome resolves the supervisor home from the environment
func DefaultHome() string {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil || userHome == "" {
		return filepath.Join(os.TempDir(), DefaultHomeName)
	}
	return filepath.Join(userHome, DefaultHomeName)
}

func (m *ProcessFileManager) Home() string {
	return m.config.Home
}

// SanitizeName replaces characters the supervisor does not keep in file names
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "app"
	}
	return unsafeNameChars.ReplaceAllString(name, "-")
}

func (m *ProcessFileManager) PIDFilePath(appName string, instanceID int) string {
	fileName := fmt.Sprintf("%s-%d.pid", SanitizeName(appName), instanceID)
	return filepath.Join(m.config.Home, PIDsSubdir, fileName)
}

func (m *ProcessFileManager) OutLogPath(appName string) string {
	return filepath.Join(m.config.Home, LogsSubdir, SanitizeName(appName)+"-out.log")
}

func (m *ProcessFileManager) ErrorLogPath(appName string) string {
	return filepath.Join(m.config.Home, LogsSubdir, SanitizeName(appName)+"-error.log")
}

// InstancePath derives a per-instance file from an app-level override path
// by inserting the instance id before the extension ("app.pid" -> "app-1.pid").
func InstancePath(path string, instanceID int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "-" + strconv.Itoa(instanceID) + ext
}

// ValidateDirectory creates dir if needed and checks that files can be created in it
func (m *ProcessFileManager) ValidateDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if os.IsPermission(err) {
			return errors.NewPermissionError("cannot create directory", err).WithContext("directory", dir)
		}
		return errors.NewIOError("cannot create directory", err).WithContext("directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		if os.IsPermission(err) {
			return errors.NewPermissionError("directory is not writable", err).WithContext("directory", dir)
		}
		return errors.NewIOError("directory is not writable", err).WithContext("directory", dir)
	}
	name := probe.Name()
	probe.Close()
	if err := os.Remove(name); err != nil {
		m.logger.Warnf("Failed to remove probe file, path: %s, error: %v", name, err)
	}

	m.logger.Debugf("Directory is writable: %s", dir)
	return nil
}

// ValidateLayout checks the pid and log directories under the home
func (m *ProcessFileManager) ValidateLayout() error {
	collection := errors.NewErrorCollection()
	collection.Add(m.ValidateDirectory(filepath.Join(m.config.Home, PIDsSubdir)))
	collection.Add(m.ValidateDirectory(filepath.Join(m.config.Home, LogsSubdir)))
	return collection.ToError()
}
