// Package invoke orchestrates invocations of external programmer tools:
// it resolves the command from the target configuration, enforces the
// inter-invocation delay USB programmers need, drives the process launcher,
// maps failures into a typed taxonomy, and memoizes version and device
// queries per resolved command.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"avrbridge/internal/domain"
	"avrbridge/internal/launch"
)

// AttrUSBDelay is the configuration attribute holding the minimum quiescent
// time between two invocations, in milliseconds. Absent or empty means no
// delay; a non-numeric value is a configuration error.
const AttrUSBDelay = "usbdelay"

// delayPollInterval is how often the delay gate checks for cancellation
// while waiting, so a cancel request is honored within this granularity.
const delayPollInterval = 10 * time.Millisecond

// EchoSinkFactory opens a console stream for one invocation. The invoker
// closes the returned writer when the invocation ends, on every path.
type EchoSinkFactory func() io.WriteCloser

// Recorder receives a record of every completed invocation. Implementations
// must not fail the invocation; errors are theirs to log.
type Recorder interface {
	Record(ctx context.Context, inv domain.Invocation)
}

// Result is the outcome of one successful invocation. It is not modified
// after being returned.
type Result struct {
	Lines    []string // stdout and stderr merged, in arrival order
	ExitCode int
}

// RunOptions adjust a single run.
type RunOptions struct {
	// WorkingDir runs the tool in the given directory, which must exist.
	// Empty keeps the process default.
	WorkingDir string

	// ForceConsole mirrors the output to the echo sink regardless of the
	// "<id>.useconsole" attribute.
	ForceConsole bool
}

// Invoker runs one concrete tool. Construct one instance per tool and reuse
// it: the inter-invocation timing state and the metadata cache live here.
// Concurrent calls against the same instance are not serialized; callers
// needing mutual exclusion must provide it themselves.
type Invoker struct {
	tool     domain.Tool
	logger   *slog.Logger
	echoSink EchoSinkFactory
	recorder Recorder

	mu         sync.Mutex
	lastFinish time.Time
	cache      *metadataCache
}

type Option func(*Invoker)

func WithLogger(logger *slog.Logger) Option {
	return func(iv *Invoker) { iv.logger = logger }
}

// WithEchoSink installs the factory used to open a console stream when the
// configuration (or the caller) asks for output mirroring.
func WithEchoSink(factory EchoSinkFactory) Option {
	return func(iv *Invoker) { iv.echoSink = factory }
}

// WithRecorder installs an invocation history recorder.
func WithRecorder(recorder Recorder) Option {
	return func(iv *Invoker) { iv.recorder = recorder }
}

func New(tool domain.Tool, opts ...Option) *Invoker {
	iv := &Invoker{
		tool:   tool,
		logger: slog.Default(),
		cache:  newMetadataCache(),
	}
	for _, opt := range opts {
		opt(iv)
	}
	return iv
}

// Tool returns the tool this invoker runs.
func (iv *Invoker) Tool() domain.Tool { return iv.tool }

// Run invokes the tool with the given arguments and returns the captured
// output lines. Every failure is a *ToolError.
func (iv *Invoker) Run(ctx context.Context, cfg domain.Config, args ...string) ([]string, error) {
	res, err := iv.RunWithOptions(ctx, cfg, args, RunOptions{})
	if err != nil {
		return nil, err
	}
	return res.Lines, nil
}

// RunWithOptions is the general invocation entry point. The sequence is:
// validate the working directory, wait out the invocation delay, open the
// echo sink if requested, launch the process, and interpret the outcome.
// The exit code of the tool is returned as data, not as an error; only
// spawn failures, cancellation, and output abort signatures fail the call.
func (iv *Invoker) RunWithOptions(ctx context.Context, cfg domain.Config, args []string, opts RunOptions) (*Result, error) {
	if opts.WorkingDir != "" {
		info, err := os.Stat(opts.WorkingDir)
		if err != nil || !info.IsDir() {
			return nil, &ToolError{
				Reason: InvalidWorkingDirectory,
				Tool:   iv.tool.Name(),
				Detail: fmt.Sprintf("%q does not name an existing directory", opts.WorkingDir),
				Err:    err,
			}
		}
	}

	command := iv.tool.Command(cfg)

	var echo io.WriteCloser
	if iv.echoSink != nil && (opts.ForceConsole || cfg.BoolAttribute(iv.tool.ID()+".useconsole")) {
		echo = iv.echoSink()
		defer func() {
			if err := echo.Close(); err != nil {
				iv.logger.Debug("closing echo sink", "err", err)
			}
		}()
	}

	if err := iv.invocationDelay(ctx, cfg, echo); err != nil {
		return nil, err
	}

	listener := iv.tool.NewOutputListener()

	launchOpts := []launch.Option{
		launch.WithListener(listener),
		launch.WithLogger(iv.logger),
	}
	if opts.WorkingDir != "" {
		launchOpts = append(launchOpts, launch.WithWorkingDir(opts.WorkingDir))
	}
	if echo != nil {
		launchOpts = append(launchOpts, launch.WithEcho(echo))
	}
	launcher := launch.New(command, args, launchOpts...)

	start := time.Now()
	exitCode, launchErr := launcher.Launch(ctx)

	iv.mu.Lock()
	iv.lastFinish = time.Now()
	iv.mu.Unlock()

	runErr := iv.interpret(listener, command, launchErr)
	iv.record(ctx, command, args, exitCode, runErr, time.Since(start))
	if runErr != nil {
		return nil, runErr
	}
	return &Result{Lines: launcher.Lines(), ExitCode: exitCode}, nil
}

// interpret maps the launch outcome into the error taxonomy. An abort
// signature found in the output wins over everything else: the tool itself
// reported the failure, even if the process exited with code 0.
func (iv *Invoker) interpret(listener domain.OutputListener, command string, launchErr error) error {
	if reason := listener.AbortReason(); reason != "" {
		return &ToolError{
			Reason: ToolAbort,
			Tool:   iv.tool.Name(),
			Detail: reason,
			Line:   listener.AbortLine(),
		}
	}
	switch {
	case launchErr == nil:
		return nil
	case errors.Is(launchErr, launch.ErrCancelled):
		return &ToolError{
			Reason: UserCancelled,
			Tool:   iv.tool.Name(),
			Detail: "cancelled while the tool was running",
			Err:    launchErr,
		}
	default:
		// Spawn or IO failure: the tool never ran to completion.
		return &ToolError{
			Reason: ToolNotFound,
			Tool:   iv.tool.Name(),
			Detail: fmt.Sprintf("cannot run %q, check the tool path settings", command),
			Err:    launchErr,
		}
	}
}

// invocationDelay waits until the configured minimum interval since the
// previous invocation has elapsed. USB-connected programmers need a quiet
// period between invocations or the bus locks up.
func (iv *Invoker) invocationDelay(ctx context.Context, cfg domain.Config, echo io.Writer) error {
	value := cfg.Attribute(AttrUSBDelay)
	if value == "" {
		return nil
	}
	delay, err := strconv.Atoi(value)
	if err != nil {
		return &ToolError{
			Reason: ConfigurationError,
			Tool:   iv.tool.Name(),
			Detail: fmt.Sprintf("invocation delay %q is not a number", value),
			Err:    err,
		}
	}
	if delay <= 0 {
		return nil
	}

	iv.mu.Lock()
	target := iv.lastFinish.Add(time.Duration(delay) * time.Millisecond)
	iv.mu.Unlock()

	remaining := time.Until(target)
	if remaining <= 0 {
		return nil
	}

	iv.echoLine(echo, fmt.Sprintf("\n>>> %s invocation delay: %d milliseconds", iv.tool.Name(), remaining.Milliseconds()))

	ticker := time.NewTicker(delayPollInterval)
	defer ticker.Stop()
	for time.Now().Before(target) {
		select {
		case <-ctx.Done():
			iv.echoLine(echo, fmt.Sprintf(">>> %s invocation delay: cancelled", iv.tool.Name()))
			return &ToolError{
				Reason: UserCancelled,
				Tool:   iv.tool.Name(),
				Detail: "cancelled during the invocation delay",
				Err:    ctx.Err(),
			}
		case <-ticker.C:
		}
	}
	iv.echoLine(echo, fmt.Sprintf(">>> %s invocation delay: finished", iv.tool.Name()))
	return nil
}

func (iv *Invoker) echoLine(echo io.Writer, msg string) {
	if echo == nil {
		return
	}
	if _, err := fmt.Fprintln(echo, msg); err != nil {
		iv.logger.Debug("echo write failed", "err", err)
	}
}

func (iv *Invoker) record(ctx context.Context, command string, args []string, exitCode int, runErr error, duration time.Duration) {
	if iv.recorder == nil {
		return
	}
	outcome := "ok"
	if runErr != nil {
		outcome = ReasonOf(runErr).String()
	}
	// Recording must survive a cancelled invocation context.
	iv.recorder.Record(context.WithoutCancel(ctx), domain.Invocation{
		ToolID:    iv.tool.ID(),
		Command:   command,
		Args:      args,
		ExitCode:  exitCode,
		Outcome:   outcome,
		Duration:  duration,
		CreatedAt: time.Now(),
	})
}

// Version returns the "name version" string of the tool, derived from its
// banner output and cached per resolved command. A banner that does not
// match the tool's pattern is not an error: the tool did run, so the
// placeholder "<name> ?.?" is returned instead.
func (iv *Invoker) Version(ctx context.Context, cfg domain.Config) (string, error) {
	command := iv.tool.Command(cfg)

	iv.mu.Lock()
	cached, ok := iv.cache.version(command)
	iv.mu.Unlock()
	if ok {
		return cached, nil
	}

	lines, err := iv.Run(ctx, cfg, iv.tool.VersionArgs()...)
	if err != nil {
		return "", err
	}

	for _, line := range lines {
		if version, ok := iv.tool.ParseVersion(line); ok {
			name := iv.tool.Name() + " " + version
			iv.mu.Lock()
			iv.cache.storeVersion(command, name)
			iv.mu.Unlock()
			return name, nil
		}
	}

	// No line matched, probably a banner format we do not know yet.
	return iv.tool.Name() + " ?.?", nil
}

// SupportedDevices returns the set of device ids the tool reports as
// supported, cached per resolved command. An empty set is a valid answer.
func (iv *Invoker) SupportedDevices(ctx context.Context, cfg domain.Config) (map[string]struct{}, error) {
	command := iv.tool.Command(cfg)

	iv.mu.Lock()
	cached, ok := iv.cache.deviceSet(command)
	iv.mu.Unlock()
	if ok {
		return cached, nil
	}

	lines, err := iv.Run(ctx, cfg, iv.tool.DeviceListArgs()...)
	if err != nil {
		return nil, err
	}

	devices := make(map[string]struct{})
	for _, line := range lines {
		if id, ok := iv.tool.ParseDevice(line); ok {
			devices[id] = struct{}{}
		}
	}

	iv.mu.Lock()
	iv.cache.storeDeviceSet(command, devices)
	iv.mu.Unlock()
	return devices, nil
}
