// Package appium is a W3C WebDriver client for an Appium server, with the
// waiting and element-scanning helpers the login flow needs.
package appium

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// WebDriver error codes the flow reacts to.
const (
	ErrCodeNoSuchElement       = "no such element"
	ErrCodeStaleElement        = "stale element reference"
	ErrCodeInvalidSession      = "invalid session id"
	ErrCodeSessionNotCreated   = "session not created"
	ErrCodeElementNotClickable = "element click intercepted"
)

// WebDriverError is an error body returned by the server.
type WebDriverError struct {
	Status  int    // HTTP status
	Code    string // W3C error code, e.g. "no such element"
	Message string
}

func (e *WebDriverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoSuchElement reports whether err is a W3C "no such element" error.
func IsNoSuchElement(err error) bool {
	var wdErr *WebDriverError
	return errors.As(err, &wdErr) && wdErr.Code == ErrCodeNoSuchElement
}

// Request budgets. Session creation installs and starts the UiAutomator2
// server on the device, everything else is a single command.
const (
	SessionTimeout        = 5 * time.Minute
	DefaultCommandTimeout = 60 * time.Second
)

// Client handles HTTP communication with Appium server.
// Every call is bounded by its context and by the command timeout.
type Client struct {
	serverURL      string
	sessionID      string
	client         *http.Client
	platform       string
	commandTimeout time.Duration
}

// NewClient creates a new Appium client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL:      strings.TrimSuffix(serverURL, "/"),
		client:         &http.Client{},
		commandTimeout: DefaultCommandTimeout,
	}
}

// SetCommandTimeout changes the per-request budget for everything except
// session creation. 0 leaves requests bounded only by their context.
func (c *Client) SetCommandTimeout(d time.Duration) {
	c.commandTimeout = d
}

// SessionID returns the current session ID, empty when not connected.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform reported by the server (lowercased).
func (c *Client) Platform() string {
	return c.platform
}

// Status queries GET /status and reports whether the server is ready.
func (c *Client) Status(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/status")
	if err != nil {
		return false, err
	}
	value, _ := resp["value"].(map[string]interface{})
	ready, ok := value["ready"].(bool)
	if !ok {
		// Appium 1.x omits "ready"; a well-formed answer means it is up
		return value != nil, nil
	}
	return ready, nil
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
			"firstMatch":  []interface{}{map[string]interface{}{}},
		},
	}

	resp, err := c.do(ctx, SessionTimeout, http.MethodPost, "/session", body)
	if err != nil {
		var wdErr *WebDriverError
		if errors.As(err, &wdErr) {
			return core.ErrSessionNotCreated.WithCause(err)
		}
		return core.ErrServerUnreachable.WithCause(err)
	}

	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return core.ErrSessionNotCreated.WithMessage("invalid session response")
	}

	c.sessionID, _ = value["sessionId"].(string)
	if c.sessionID == "" {
		// JSONWP servers put the ID at the top level
		c.sessionID, _ = resp["sessionId"].(string)
	}
	if c.sessionID == "" {
		return core.ErrSessionNotCreated.WithMessage("no session ID in response")
	}

	if caps, ok := value["capabilities"].(map[string]interface{}); ok {
		if platform, ok := caps["platformName"].(string); ok {
			c.platform = strings.ToLower(platform)
		}
	}

	return nil
}

// Disconnect closes the session. Safe to call when not connected.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(ctx, c.sessionPath())
	c.sessionID = ""
	return err
}

// Element Operations

// FindElement finds a single element.
func (c *Client) FindElement(ctx context.Context, strategy, value string) (string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(ctx, c.sessionPath()+"/element", body)
	if err != nil {
		return "", err
	}

	elemValue, ok := resp["value"].(map[string]interface{})
	if !ok {
		return "", &WebDriverError{Code: ErrCodeNoSuchElement, Message: value}
	}

	id := extractElementID(elemValue)
	if id == "" {
		return "", &WebDriverError{Code: ErrCodeNoSuchElement, Message: value}
	}
	return id, nil
}

// FindElements finds multiple elements. No match is an empty slice, not an error.
func (c *Client) FindElements(ctx context.Context, strategy, value string) ([]string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(ctx, c.sessionPath()+"/elements", body)
	if err != nil {
		return nil, err
	}

	values, ok := resp["value"].([]interface{})
	if !ok {
		return nil, nil
	}

	var ids []string
	for _, v := range values {
		if elem, ok := v.(map[string]interface{}); ok {
			if id := extractElementID(elem); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// ClickElement clicks an element using WebDriver standard endpoint.
func (c *Client) ClickElement(ctx context.Context, elementID string) error {
	_, err := c.post(ctx, c.elementPath(elementID)+"/click", map[string]interface{}{})
	return err
}

// SendKeysToElement types text into an element.
func (c *Client) SendKeysToElement(ctx context.Context, elementID, text string) error {
	chars := make([]string, 0, len(text))
	for _, ch := range text {
		chars = append(chars, string(ch))
	}
	_, err := c.post(ctx, c.elementPath(elementID)+"/value", map[string]interface{}{
		"text":  text,
		"value": chars,
	})
	return err
}

// GetElementAttribute returns an element's attribute value.
// Missing attributes come back as "".
func (c *Client) GetElementAttribute(ctx context.Context, elementID, name string) (string, error) {
	resp, err := c.get(ctx, c.elementPath(elementID) + "/attribute/" + name)
	if err != nil {
		return "", err
	}
	switch v := resp["value"].(type) {
	case string:
		return v, nil
	case bool:
		return fmt.Sprintf("%t", v), nil
	default:
		return "", nil
	}
}

// IsElementDisplayed checks if element is visible.
func (c *Client) IsElementDisplayed(ctx context.Context, elementID string) (bool, error) {
	resp, err := c.get(ctx, c.elementPath(elementID) + "/displayed")
	if err != nil {
		return false, err
	}
	displayed, _ := resp["value"].(bool)
	return displayed, nil
}

// IsElementEnabled checks if element is enabled.
func (c *Client) IsElementEnabled(ctx context.Context, elementID string) (bool, error) {
	resp, err := c.get(ctx, c.elementPath(elementID) + "/enabled")
	if err != nil {
		return false, err
	}
	enabled, _ := resp["value"].(bool)
	return enabled, nil
}

// Screen Operations

// Screenshot returns a screenshot as PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, c.sessionPath() + "/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Source returns the page source XML.
func (c *Client) Source(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, c.sessionPath() + "/source")
	if err != nil {
		return "", err
	}
	source, _ := resp["value"].(string)
	return source, nil
}

// Timeouts

// SetImplicitWait sets the implicit wait timeout.
func (c *Client) SetImplicitWait(ctx context.Context, timeout time.Duration) error {
	_, err := c.post(ctx, c.sessionPath()+"/timeouts", map[string]interface{}{
		"implicit": timeout.Milliseconds(),
	})
	return err
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.do(ctx, c.commandTimeout, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (map[string]interface{}, error) {
	return c.do(ctx, c.commandTimeout, http.MethodPost, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.do(ctx, c.commandTimeout, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, body interface{}) (map[string]interface{}, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &WebDriverError{Status: resp.StatusCode, Code: "unknown error", Message: strings.TrimSpace(string(respBody))}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// W3C error body: {"value": {"error": ..., "message": ...}}
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errType, ok := errValue["error"].(string); ok && errType != "" {
			errMsg, _ := errValue["message"].(string)
			return result, &WebDriverError{Status: resp.StatusCode, Code: errType, Message: errMsg}
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return result, &WebDriverError{Status: resp.StatusCode, Code: "unknown error", Message: http.StatusText(resp.StatusCode)}
	}

	return result, nil
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
