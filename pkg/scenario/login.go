// Package scenario runs the login flow against an app on a device.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/config"
	"github.com/devicelab-dev/applogin-e2e/pkg/core"
	"github.com/devicelab-dev/applogin-e2e/pkg/driver/appium"
	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
)

// Step names, in execution order.
const (
	StepClearAppData       = "clearAppData"
	StepForceStopApp       = "forceStopApp"
	StepCreateSession      = "createSession"
	StepVerifyAppIsRunning = "verifyAppIsRunning"
	StepHandlePermissions  = "handlePermissionDialogs"
	StepEnterEmail         = "enterEmail"
	StepEnterPassword      = "enterPassword"
	StepTapLogin           = "tapLogin"
	StepVerifyLoginSuccess = "verifyLoginSuccess"
	StepQuitSession        = "quitSession"
)

const runName = "login"

// quitTimeout bounds session teardown, which still runs after cancellation.
const quitTimeout = 30 * time.Second

// step is one unit of the flow. bestEffort steps end as warned instead of
// failing the run.
type step struct {
	name       string
	bestEffort bool
	run        func(ctx context.Context) (string, error)
}

// Runner executes the login flow.
type Runner struct {
	cfg        *config.Config
	device     DeviceBridge
	newSession SessionFactory
	sleep      Sleeper

	// OnStepComplete is called after each step finishes, including skipped ones.
	OnStepComplete func(step core.StepResult)

	session Session
	result  *core.RunResult
}

// Option configures a Runner.
type Option func(*Runner)

// WithSleeper replaces the real sleeper, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleep = s }
}

// WithStepCallback sets OnStepComplete.
func WithStepCallback(fn func(core.StepResult)) Option {
	return func(r *Runner) { r.OnStepComplete = fn }
}

// New creates a Runner. device may be nil, in which case the reset steps are
// warned and the app keeps whatever state it has.
func New(cfg *config.Config, device DeviceBridge, newSession SessionFactory, opts ...Option) *Runner {
	r := &Runner{
		cfg:        cfg,
		device:     device,
		newSession: newSession,
		sleep:      Sleep,
	}
	if r.newSession == nil {
		r.newSession = AppiumSession
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the flow once and returns its result. The session, if one
// was created, is always quit, even when ctx is canceled.
func (r *Runner) Run(ctx context.Context) *core.RunResult {
	r.session = nil
	r.result = &core.RunResult{
		Name:       runName,
		DeviceID:   r.cfg.Device,
		AppPackage: r.cfg.App.Package,
		ServerURL:  r.cfg.AppiumURL,
		StartTime:  time.Now(),
	}

	logger.Info("=== login run: %s on %s via %s ===", r.cfg.App.Package, r.cfg.Device, r.cfg.AppiumURL)

	setup := []step{
		{name: StepClearAppData, bestEffort: true, run: r.clearAppData},
		{name: StepForceStopApp, bestEffort: true, run: r.forceStopApp},
		{name: StepCreateSession, run: r.createSession},
	}
	body := []step{
		{name: StepVerifyAppIsRunning, run: r.verifyAppIsRunning},
		{name: StepHandlePermissions, bestEffort: true, run: r.handlePermissionDialogs},
		{name: StepEnterEmail, run: r.enterEmail},
		{name: StepEnterPassword, run: r.enterPassword},
		{name: StepTapLogin, run: r.tapLogin},
		{name: StepVerifyLoginSuccess, run: r.verifyLoginSuccess},
	}

	failed := false
	for _, st := range setup {
		if failed {
			r.skip(st.name, "session was not created")
			continue
		}
		if res := r.runStep(ctx, st); !res.Status.IsSuccess() {
			failed = true
		}
	}

	for _, st := range body {
		if failed {
			r.skip(st.name, "previous step failed")
			continue
		}
		if res := r.runStep(ctx, st); !res.Status.IsSuccess() {
			failed = true
			r.result.Error = res.Error
			r.captureDebugInfo(ctx)
		}
	}

	if r.session != nil {
		quitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), quitTimeout)
		r.runStep(quitCtx, step{name: StepQuitSession, run: r.quitSession})
		cancel()
	} else {
		r.skip(StepQuitSession, "no session")
	}

	r.result.Duration = time.Since(r.result.StartTime)
	r.result.ComputeSummary()
	if r.result.Error == "" {
		if f := r.result.FirstFailure(); f != nil {
			r.result.Error = f.Error
		}
	}

	logger.Info("=== login run %s in %v ===", r.result.Status, r.result.Duration)
	return r.result
}

func (r *Runner) runStep(ctx context.Context, st step) core.StepResult {
	res := core.StepResult{
		Index:     len(r.result.Steps),
		Name:      st.name,
		StartTime: time.Now(),
	}

	logger.Info("step %s: start", st.name)

	var msg string
	err := ctx.Err()
	if err == nil {
		msg, err = st.run(ctx)
	}
	res.Duration = time.Since(res.StartTime)
	res.Message = msg

	switch {
	case err == nil:
		res.Status = core.StatusPassed
		logger.Info("step %s: passed (%v)", st.name, res.Duration)
	case st.bestEffort && ctx.Err() == nil:
		res.Status = core.StatusWarned
		res.Error = err.Error()
		res.Category = core.CategoryOf(err)
		logger.Warn("step %s: %v", st.name, err)
	default:
		res.Status = statusFor(err)
		res.Error = err.Error()
		res.Category = core.CategoryOf(err)
		logger.Error("step %s: %s: %v", st.name, res.Status, err)
	}

	r.record(res)
	return res
}

// statusFor maps a step error to failed (the app misbehaved) or errored
// (the run could not proceed).
func statusFor(err error) core.StepStatus {
	if core.CategoryOf(err) == core.ErrCategoryAssertion {
		return core.StatusFailed
	}
	return core.StatusErrored
}

func (r *Runner) skip(name, reason string) {
	r.record(core.StepResult{
		Index:     len(r.result.Steps),
		Name:      name,
		Status:    core.StatusSkipped,
		StartTime: time.Now(),
		Message:   reason,
	})
}

func (r *Runner) record(res core.StepResult) {
	r.result.Steps = append(r.result.Steps, res)
	if r.OnStepComplete != nil {
		r.OnStepComplete(res)
	}
}

// ---- setup ----

func (r *Runner) clearAppData(ctx context.Context) (string, error) {
	if r.device == nil {
		return "", errors.New("no device bridge available")
	}
	if err := r.device.ClearAppData(ctx, r.cfg.App.Package); err != nil {
		return "", err
	}
	return "cleared " + r.cfg.App.Package, nil
}

func (r *Runner) forceStopApp(ctx context.Context) (string, error) {
	var stopErr error
	if r.device == nil {
		stopErr = errors.New("no device bridge available")
	} else {
		stopErr = r.device.ForceStop(ctx, r.cfg.App.Package)
	}

	// Give the device time to settle even when the stop failed.
	if err := r.sleep(ctx, r.cfg.Delays.AfterReset); err != nil {
		return "", err
	}
	if stopErr != nil {
		return "", stopErr
	}
	return "stopped " + r.cfg.App.Package, nil
}

func (r *Runner) createSession(ctx context.Context) (string, error) {
	session, err := r.newSession(ctx, r.cfg.AppiumURL, r.cfg.Capabilities())
	if err != nil {
		return "", err
	}
	r.session = session
	r.result.SessionID = session.SessionID()

	if err := r.sleep(ctx, r.cfg.Delays.AfterSession); err != nil {
		return "", err
	}
	return "session " + session.SessionID(), nil
}

// ---- body ----

func (r *Runner) verifyAppIsRunning(ctx context.Context) (string, error) {
	if err := r.sleep(ctx, r.cfg.Delays.BeforeTest); err != nil {
		return "", err
	}

	if _, err := r.wait().UntilPresent(ctx, r.session, r.cfg.AppRunningXPath()); err != nil {
		if ctx.Err() != nil {
			return "", err
		}
		return "", core.ErrAppNotRunning.
			WithCause(err).
			WithDetails(map[string]interface{}{"package": r.cfg.App.Package})
	}
	return r.cfg.App.Package + " is in the foreground", nil
}

// handlePermissionDialogs clicks every visible permission button once.
// Individual click failures are logged and skipped.
func (r *Runner) handlePermissionDialogs(ctx context.Context) (string, error) {
	xpath := r.cfg.PermissionXPath()
	if xpath == "" {
		return "no permission selectors configured", nil
	}

	ids, err := r.session.FindElements(ctx, "xpath", xpath)
	if err != nil {
		return "", fmt.Errorf("looking up permission buttons: %w", err)
	}

	clicked := 0
	for _, id := range ids {
		displayed, err := r.session.IsElementDisplayed(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Debug("permission button %s: %v", id, err)
			continue
		}
		if !displayed {
			continue
		}
		if err := r.session.ClickElement(ctx, id); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Warn("permission button %s: click failed: %v", id, err)
			continue
		}
		clicked++
		if err := r.sleep(ctx, r.cfg.Delays.AfterDialog); err != nil {
			return "", err
		}
	}

	if clicked == 0 {
		return "no permission dialogs", nil
	}
	return fmt.Sprintf("dismissed %d permission dialog(s)", clicked), nil
}

func (r *Runner) enterEmail(ctx context.Context) (string, error) {
	if err := r.fillField(ctx, r.cfg.Selectors.EmailLabel, r.cfg.Credentials.Email); err != nil {
		return "", err
	}
	return "entered email", nil
}

func (r *Runner) enterPassword(ctx context.Context) (string, error) {
	if err := r.fillField(ctx, r.cfg.Selectors.PasswordLabel, r.cfg.Credentials.Password); err != nil {
		return "", err
	}
	return "entered password", nil
}

// fillField taps a field label, then types into whichever input took focus.
// The labels are plain views, so the input itself has to be found by focus.
func (r *Runner) fillField(ctx context.Context, labelXPath, text string) error {
	label, err := r.wait().UntilClickable(ctx, r.session, labelXPath)
	if err != nil {
		return err
	}
	if err := r.session.ClickElement(ctx, label); err != nil {
		return fmt.Errorf("click %s: %w", labelXPath, err)
	}
	if err := r.sleep(ctx, r.cfg.Delays.AfterInput); err != nil {
		return err
	}

	input, err := appium.FocusedElement(ctx, r.session)
	if err != nil {
		return err
	}
	if err := r.session.SendKeysToElement(ctx, input, text); err != nil {
		return fmt.Errorf("type into focused element: %w", err)
	}
	return r.sleep(ctx, r.cfg.Delays.AfterInput)
}

func (r *Runner) tapLogin(ctx context.Context) (string, error) {
	button, err := r.wait().UntilClickable(ctx, r.session, r.cfg.Selectors.LoginButton)
	if err != nil {
		return "", err
	}
	if err := r.session.ClickElement(ctx, button); err != nil {
		return "", fmt.Errorf("click login button: %w", err)
	}
	if err := r.sleep(ctx, r.cfg.Delays.AfterLogin); err != nil {
		return "", err
	}
	return "tapped login", nil
}

func (r *Runner) verifyLoginSuccess(ctx context.Context) (string, error) {
	source, err := r.session.Source(ctx)
	if err != nil {
		return "", fmt.Errorf("get page source: %w", err)
	}
	r.result.PageSource = source

	ok, err := loginSucceeded(r.cfg, source)
	if err != nil {
		return "", core.ErrInvalidConfig.WithMessage("success script failed").WithCause(err)
	}
	if !ok {
		return "", core.ErrLoginFailed.WithDetails(map[string]interface{}{
			"successText": r.cfg.Success.Text,
		})
	}

	if r.cfg.Success.Script != "" {
		return "success script matched", nil
	}
	return fmt.Sprintf("found %q", r.cfg.Success.Text), nil
}

// ---- teardown ----

func (r *Runner) quitSession(ctx context.Context) (string, error) {
	if err := r.session.Disconnect(ctx); err != nil {
		return "", fmt.Errorf("quit session: %w", err)
	}
	return "session closed", nil
}

// captureDebugInfo grabs the page source and a screenshot after a failure.
// Neither is fatal; a missing artifact is only logged. Nothing is fetched
// once the run is canceled.
func (r *Runner) captureDebugInfo(ctx context.Context) {
	if r.session == nil {
		return
	}
	if ctx.Err() != nil {
		logger.Info("debug info: skipped, run canceled")
		return
	}

	if r.result.PageSource == "" {
		source, err := r.session.Source(ctx)
		if err != nil {
			logger.Warn("debug info: page source unavailable: %v", err)
		} else {
			r.result.PageSource = source
		}
	}
	if r.result.PageSource != "" {
		r.result.DebugSource = appium.Snippet(r.result.PageSource, r.cfg.DebugSourceLimit)
		logger.Info("debug info: page source (first %d chars):\n%s", r.cfg.DebugSourceLimit, r.result.DebugSource)

		if elements, err := appium.ParsePageSource(r.result.PageSource); err == nil {
			logger.Info("debug info: visible texts: %s", strings.Join(appium.VisibleTexts(elements), " | "))
			if focused := appium.FocusedInSource(elements); focused != nil {
				logger.Info("debug info: focused element: %s %q", focused.Class, focused.Label())
			}
		} else {
			logger.Debug("debug info: page source not parseable: %v", err)
		}
	}

	shot, err := r.session.Screenshot(ctx)
	if err != nil {
		logger.Warn("debug info: screenshot unavailable: %v", err)
		return
	}
	r.result.Screenshot = shot
}

func (r *Runner) wait() *appium.Wait {
	return appium.NewWait(r.cfg.WaitTimeout)
}
