package scenario

import (
	"context"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/driver/appium"
)

// Session is the part of an automation session the login flow uses.
// Implemented by appium.Client.
type Session interface {
	appium.AttributeReader
	IsElementDisplayed(ctx context.Context, elementID string) (bool, error)
	IsElementEnabled(ctx context.Context, elementID string) (bool, error)
	ClickElement(ctx context.Context, elementID string) error
	SendKeysToElement(ctx context.Context, elementID, text string) error
	Source(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	SessionID() string
	Disconnect(ctx context.Context) error
}

// SessionFactory opens a session on the automation server.
type SessionFactory func(ctx context.Context, serverURL string, caps map[string]interface{}) (Session, error)

// DeviceBridge resets app state on the device. Implemented by device.Bridge.
type DeviceBridge interface {
	ClearAppData(ctx context.Context, pkg string) error
	ForceStop(ctx context.Context, pkg string) error
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// AppiumSession creates a W3C session on an Appium server.
func AppiumSession(ctx context.Context, serverURL string, caps map[string]interface{}) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := appium.NewClient(serverURL)
	if err := client.Connect(ctx, caps); err != nil {
		return nil, err
	}
	return client, nil
}

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
