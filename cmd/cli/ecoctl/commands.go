package main

import (
	"fmt"
	"io"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/ecosystem"
	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
	"github.com/core-tools/hsu-ecosystem-go/pkg/export"
	"github.com/core-tools/hsu-ecosystem-go/pkg/launchplan"
	"github.com/core-tools/hsu-ecosystem-go/pkg/processfile"
	"github.com/core-tools/hsu-ecosystem-go/pkg/watch"

	"go.uber.org/multierr"
)

// exitError carries an exit code for failures already reported on stdout
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type loadFlags struct {
	Config string `long:"config" short:"c" description:"Ecosystem file path (js, json or yaml)" required:"true"`
	Strict bool   `long:"strict" description:"Require every field and reject unknown keys"`
}

type hostFlags struct {
	CPUs int    `long:"cpus" description:"CPU count used to resolve 'max' instances (default: this host)"`
	Home string `long:"home" description:"Supervisor home for pid and log files (default: $PM2_HOME or ~/.pm2)"`
}

func (f hostFlags) options() launchplan.Options {
	return launchplan.Options{CPUs: f.CPUs, Home: f.Home}
}

func (c *cli) loader(strict, checkPaths bool) watch.LoadFunc {
	return func(path string) (*ecosystem.Ecosystem, error) {
		eco, err := ecosystem.Load(path, ecosystem.LoadOptions{Strict: strict})
		if err != nil {
			return nil, err
		}
		if err := ecosystem.ValidateEcosystem(eco, ecosystem.ValidateOptions{CheckPaths: checkPaths}); err != nil {
			return nil, err
		}
		c.logger.Debugf("Ecosystem loaded, path: %s, apps: %v", path, eco.Names())
		return eco, nil
	}
}

// loadValid loads and validates, printing problems and returning an exitError on failure
func (c *cli) loadValid(opts loadFlags, checkPaths bool) (*ecosystem.Ecosystem, error) {
	eco, err := c.loader(opts.Strict, checkPaths)(opts.Config)
	if err != nil {
		reportProblems(c.stdout, opts.Config, err)
		return nil, &exitError{code: exitFailure}
	}
	return eco, nil
}

// reportProblems prints the headline of err followed by one line per problem
func reportProblems(w io.Writer, path string, err error) {
	headline := err.Error()
	problems := []error{}

	var domainErr *errors.DomainError
	if errors.As(err, &domainErr) && domainErr.Cause != nil {
		headline = (&errors.DomainError{
			Type:    domainErr.Type,
			Message: domainErr.Message,
			Context: domainErr.Context,
		}).Error()
		problems = multierr.Errors(domainErr.Cause)
	}

	fmt.Fprintf(w, "%s: INVALID: %s\n", path, headline)
	for _, problem := range problems {
		fmt.Fprintf(w, "  - %v\n", problem)
	}
}

type validateCommand struct {
	cli *cli

	loadFlags
	CheckPaths bool          `long:"check-paths" description:"Check that script, interpreter and cwd exist on this host"`
	Watch      bool          `long:"watch" description:"Keep running and re-validate whenever the file changes"`
	Debounce   time.Duration `long:"debounce" default:"500ms" description:"Quiet period after a change before re-validating"`
}

func (v *validateCommand) Execute(args []string) error {
	if v.Watch {
		return v.runWatch()
	}

	eco, err := v.cli.loadValid(v.loadFlags, v.CheckPaths)
	if err != nil {
		return err
	}
	fmt.Fprintf(v.cli.stdout, "%s: OK, %d app(s)\n", v.Config, len(eco.Apps))
	return nil
}

func (v *validateCommand) runWatch() error {
	c := v.cli
	watcher := watch.NewWatcher(v.Config, c.loader(v.Strict, v.CheckPaths), c.logger)
	watcher.SetDebounce(v.Debounce)

	results := make(chan watch.Result, 8)
	watcher.RegisterListener(results)

	if err := watcher.Start(c.ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-watcher.Done():
			return errors.NewInternalError("ecosystem watcher stopped unexpectedly", nil)
		case result := <-results:
			stamp := result.At.Format("15:04:05")
			if result.Err != nil {
				fmt.Fprintf(c.stdout, "[%s] ", stamp)
				reportProblems(c.stdout, v.Config, result.Err)
				continue
			}
			fmt.Fprintf(c.stdout, "[%s] %s: OK, %d app(s)\n", stamp, v.Config, len(result.Ecosystem.Apps))
		}
	}
}

type showCommand struct {
	cli *cli

	loadFlags
	Format string `long:"format" short:"f" default:"yaml" choice:"yaml" choice:"json" choice:"js" description:"Output format"`
	App    string `long:"app" description:"Show only the named app"`
}

func (s *showCommand) Execute(args []string) error {
	eco, err := s.cli.loadValid(s.loadFlags, false)
	if err != nil {
		return err
	}

	if s.App != "" {
		app, ok := eco.App(s.App)
		if !ok {
			return errors.NewNotFoundError("app not found in ecosystem", nil).WithContext("app", s.App)
		}
		eco = &ecosystem.Ecosystem{Apps: []ecosystem.App{*app}}
	}

	format, err := ecosystem.ParseFormat(s.Format)
	if err != nil {
		return err
	}
	return ecosystem.Encode(s.cli.stdout, eco, format)
}

type planCommand struct {
	cli *cli

	loadFlags
	hostFlags
	App       string `long:"app" description:"Describe only the named app"`
	CheckHome bool   `long:"check-home" description:"Create the pid and log directories under the home and check they are writable"`
}

func (p *planCommand) Execute(args []string) error {
	eco, err := p.cli.loadValid(p.loadFlags, false)
	if err != nil {
		return err
	}

	plan, err := launchplan.Build(eco, p.options(), p.cli.logger)
	if err != nil {
		return err
	}
	if p.App != "" {
		if plan, err = plan.Only(p.App); err != nil {
			return err
		}
	}

	if p.CheckHome {
		files := processfile.NewProcessFileManager(processfile.ProcessFileConfig{Home: plan.Home}, p.cli.logger)
		if err := files.ValidateLayout(); err != nil {
			return err
		}
	}

	return plan.Describe(p.cli.stdout)
}

type exportCommand struct {
	cli *cli

	loadFlags
	hostFlags
	Format string `long:"format" short:"f" required:"true" description:"Target format: yaml, json, js, pupervisor or hsu"`
	Output string `long:"output" short:"o" description:"Output file, written atomically (default: stdout)"`
}

func (e *exportCommand) Execute(args []string) error {
	format, err := export.ParseFormat(e.Format)
	if err != nil {
		return err
	}

	eco, err := e.cli.loadValid(e.loadFlags, false)
	if err != nil {
		return err
	}

	if e.Output == "" {
		return export.Render(e.cli.stdout, eco, format, e.options(), e.cli.logger)
	}
	if err := export.WriteFile(e.Output, eco, format, e.options(), e.cli.logger); err != nil {
		return err
	}
	fmt.Fprintf(e.cli.stdout, "wrote %s\n", e.Output)
	return nil
}
