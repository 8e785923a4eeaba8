package appium

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// DefaultPollInterval matches Selenium's WebDriverWait polling period.
const DefaultPollInterval = 500 * time.Millisecond

// Finder locates elements.
type Finder interface {
	FindElement(ctx context.Context, strategy, value string) (string, error)
	FindElements(ctx context.Context, strategy, value string) ([]string, error)
}

// ElementState is a Finder that can also read element state.
type ElementState interface {
	Finder
	IsElementDisplayed(ctx context.Context, elementID string) (bool, error)
	IsElementEnabled(ctx context.Context, elementID string) (bool, error)
}

// Condition is polled until it returns a non-empty element ID or the wait
// times out. The error explains why the condition does not hold yet.
type Condition func(ctx context.Context) (string, error)

// Wait polls a condition until it holds or the timeout elapses.
type Wait struct {
	Timeout  time.Duration
	Interval time.Duration
}

// NewWait creates a Wait with the default poll interval.
func NewWait(timeout time.Duration) *Wait {
	return &Wait{Timeout: timeout, Interval: DefaultPollInterval}
}

// Until polls cond. The condition is always evaluated at least once.
func (w *Wait) Until(ctx context.Context, desc string, cond Condition) (string, error) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(w.Timeout)

	var lastErr error
	for {
		id, err := cond(ctx)
		if err == nil && id != "" {
			return id, nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if !time.Now().Before(deadline) {
			timeoutErr := core.ErrWaitTimeout.
				WithMessage(fmt.Sprintf("timed out after %v waiting for %s", w.Timeout, desc)).
				WithDetails(map[string]interface{}{"condition": desc})
			if lastErr != nil {
				return "", timeoutErr.WithCause(lastErr)
			}
			return "", timeoutErr
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

// UntilPresent waits until an element matching xpath exists.
func (w *Wait) UntilPresent(ctx context.Context, s Finder, xpath string) (string, error) {
	return w.Until(ctx, "presence of "+xpath, Present(s, xpath))
}

// UntilClickable waits until an element matching xpath exists, is displayed
// and is enabled.
func (w *Wait) UntilClickable(ctx context.Context, s ElementState, xpath string) (string, error) {
	return w.Until(ctx, "clickable "+xpath, Clickable(s, xpath))
}

// Present holds when an element matching xpath exists.
func Present(s Finder, xpath string) Condition {
	return func(ctx context.Context) (string, error) {
		return s.FindElement(ctx, "xpath", xpath)
	}
}

// Clickable holds when an element matching xpath is displayed and enabled.
func Clickable(s ElementState, xpath string) Condition {
	return func(ctx context.Context) (string, error) {
		id, err := s.FindElement(ctx, "xpath", xpath)
		if err != nil {
			return "", err
		}
		displayed, err := s.IsElementDisplayed(ctx, id)
		if err != nil {
			return "", err
		}
		if !displayed {
			return "", fmt.Errorf("element %s is not displayed", xpath)
		}
		enabled, err := s.IsElementEnabled(ctx, id)
		if err != nil {
			return "", err
		}
		if !enabled {
			return "", fmt.Errorf("element %s is not enabled", xpath)
		}
		return id, nil
	}
}
