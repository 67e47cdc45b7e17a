package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-ecosystem-go/pkg/ecosystem"
	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
	"github.com/core-tools/hsu-ecosystem-go/pkg/launchplan"
	"github.com/core-tools/hsu-ecosystem-go/pkg/logging"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Render writes eco in the requested format. Round-trip formats reproduce the
// ecosystem file itself; supervisor formats are derived from its launch plan.
func Render(w io.Writer, eco *ecosystem.Ecosystem, format Format, options launchplan.Options, logger logging.Logger) error {
	if eco == nil {
		return errors.NewValidationError("ecosystem cannot be nil", nil)
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	if ecoFormat, ok := format.ecosystemFormat(); ok {
		return ecosystem.Encode(w, eco, ecoFormat)
	}

	plan, err := launchplan.Build(eco, options, logger)
	if err != nil {
		return err
	}
	if err := checkProcessNames(plan); err != nil {
		return err
	}

	var document interface{}
	switch format {
	case FormatPupervisor:
		document = toPupervisor(plan)
	case FormatHSU:
		document = toHSU(plan)
	default:
		return errors.NewValidationError(fmt.Sprintf("unsupported export format: %s", format), nil)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(document); err != nil {
		return errors.NewIOError(fmt.Sprintf("failed to encode %s configuration", format), err)
	}
	if err := encoder.Close(); err != nil {
		return errors.NewIOError(fmt.Sprintf("failed to encode %s configuration", format), err)
	}

	logger.Debugf("Rendered %s configuration, apps: %d, processes: %d", format, len(plan.Apps), plan.TotalProcesses())
	return nil
}

// processName is the name one instance gets in the target supervisor;
// apps with several instances get an "-<index>" suffix.
func processName(app launchplan.AppPlan, instance launchplan.InstancePlan) string {
	if len(app.Instances) > 1 {
		return fmt.Sprintf("%s-%d", app.Name, instance.Index)
	}
	return app.Name
}

// checkProcessNames rejects plans where an instance name equals another
// process name, e.g. app "api" with 2 instances next to an app named "api-1".
func checkProcessNames(plan *launchplan.Plan) error {
	owners := make(map[string]string)
	collection := errors.NewErrorCollection()

	for _, app := range plan.Apps {
		for _, instance := range app.Instances {
			name := processName(app, instance)
			if owner, exists := owners[name]; exists {
				collection.Add(errors.NewConflictError(
					fmt.Sprintf("process name '%s' of app '%s' is already used by app '%s'", name, app.Name, owner),
					nil,
				).WithContext("process", name))
				continue
			}
			owners[name] = app.Name
		}
	}

	if collection.HasErrors() {
		return errors.NewConflictError("exported process names are not unique", collection.ToError())
	}
	return nil
}

// WriteFile renders into path atomically: readers see either the old file or
// the complete new one.
func WriteFile(path string, eco *ecosystem.Ecosystem, format Format, options launchplan.Options, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	var buf bytes.Buffer
	if err := Render(&buf, eco, format, options, logger); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewIOError("failed to create output directory", err).WithContext("directory", dir)
		}
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return errors.NewIOError("failed to create pending output file", err).WithContext("path", path)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debugf("Cleanup of pending output file failed, path: %s, error: %v", path, err)
		}
	}()

	if _, err := pendingFile.Write(buf.Bytes()); err != nil {
		return errors.NewIOError("failed to write output file", err).WithContext("path", path)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return errors.NewIOError("failed to replace output file", err).WithContext("path", path)
	}

	logger.Infof("Exported %s configuration to %s", format, path)
	return nil
}
