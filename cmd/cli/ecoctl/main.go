package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/core-tools/hsu-ecosystem-go/pkg/logging"
	"github.com/core-tools/hsu-ecosystem-go/pkg/logging/zaplogging"

	flags "github.com/jessevdk/go-flags"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

type globalOptions struct {
	LogLevel  string `long:"log-level" default:"warn" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFormat string `long:"log-format" default:"console" choice:"console" choice:"json" description:"Log encoding"`
}

// LoggerFactory builds the logger once global flags are known
type LoggerFactory func(level, format string) (logging.Logger, func(), error)

type cli struct {
	ctx       context.Context
	stdout    io.Writer
	newLogger LoggerFactory
	logger    logging.Logger
	global    globalOptions
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func zapLoggerFactory(level, format string) (logging.Logger, func(), error) {
	sprintfLogger, err := zaplogging.NewSprintfLogger(level, format)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(logPrefix("ecoctl"), sprintfLogger.LogFuncs())
	return logger, func() { _ = sprintfLogger.Sync() }, nil
}

func newParser(c *cli) *flags.Parser {
	parser := flags.NewParser(&c.global, flags.HelpFlag)
	parser.Name = "ecoctl"

	commands := []struct {
		name, short, long string
		data              interface{}
	}{
		{"validate", "Validate an ecosystem file",
			"Load and validate an ecosystem file, reporting every problem found.", &validateCommand{cli: c}},
		{"show", "Print the normalized ecosystem",
			"Load an ecosystem file, apply defaults and print it in the requested format.", &showCommand{cli: c}},
		{"plan", "Describe what the supervisor will launch",
			"Print instances, restart schedule, memory threshold and file layout for every app.", &planCommand{cli: c}},
		{"export", "Convert to another supervisor format",
			"Render the ecosystem as yaml, json, js, pupervisor or hsu configuration.", &exportCommand{cli: c}},
	}
	for _, cmd := range commands {
		if _, err := parser.AddCommand(cmd.name, cmd.short, cmd.long, cmd.data); err != nil {
			panic(err)
		}
	}

	parser.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}
		logger, sync, err := c.newLogger(c.global.LogLevel, c.global.LogFormat)
		if err != nil {
			return err
		}
		defer sync()
		c.logger = logger
		return command.Execute(args)
	}

	return parser
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer, newLogger LoggerFactory) int {
	c := &cli{ctx: ctx, stdout: stdout, newLogger: newLogger}
	parser := newParser(c)

	_, err := parser.ParseArgs(argv)
	if err == nil {
		return exitOK
	}

	if flagsErr, ok := err.(*flags.Error); ok {
		if flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, flagsErr.Message)
			return exitOK
		}
		fmt.Fprintf(stderr, "Command line flags parsing failed: %v\n", err)
		return exitUsage
	}

	if exitErr, ok := err.(*exitError); ok {
		return exitErr.code
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, zapLoggerFactory)
	stop()
	os.Exit(code)
}
