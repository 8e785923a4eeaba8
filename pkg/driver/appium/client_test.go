package appium

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
)

// writeJSON encodes data as JSON to the response writer.
func writeJSON(w http.ResponseWriter, data interface{}) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a W3C error body.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	writeJSON(w, map[string]interface{}{
		"value": map[string]interface{}{
			"error":   code,
			"message": message,
		},
	})
}

func TestClient_Connect(t *testing.T) {
	var gotCaps map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session" && r.Method == http.MethodPost {
			var body struct {
				Capabilities struct {
					AlwaysMatch map[string]interface{} `json:"alwaysMatch"`
				} `json:"capabilities"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			gotCaps = body.Capabilities.AlwaysMatch
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{
					"sessionId": "test-session-123",
					"capabilities": map[string]interface{}{
						"platformName": "Android",
					},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	err := client.Connect(context.Background(), map[string]interface{}{
		"platformName":      "Android",
		"appium:appPackage": "com.facebook.lite",
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if client.SessionID() != "test-session-123" {
		t.Errorf("Expected sessionID 'test-session-123', got '%s'", client.SessionID())
	}
	if client.Platform() != "android" {
		t.Errorf("Expected platform 'android', got '%s'", client.Platform())
	}
	if gotCaps["appium:appPackage"] != "com.facebook.lite" {
		t.Errorf("capabilities not sent in alwaysMatch: %v", gotCaps)
	}
}

func TestClient_Connect_SessionNotCreated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, ErrCodeSessionNotCreated, "Could not find a connected Android device")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Connect(context.Background(), map[string]interface{}{"platformName": "Android"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, core.ErrSessionNotCreated) {
		t.Errorf("expected ErrSessionNotCreated, got %v", err)
	}
	if client.SessionID() != "" {
		t.Error("session ID must stay empty on failure")
	}
}

func TestClient_Connect_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url)
	err := client.Connect(context.Background(), map[string]interface{}{})
	if !errors.Is(err, core.ErrServerUnreachable) {
		t.Errorf("expected ErrServerUnreachable, got %v", err)
	}
	if core.CategoryOf(err) != core.ErrCategoryConnection {
		t.Errorf("expected connection category, got %s", core.CategoryOf(err))
	}
}

func TestClient_Disconnect(t *testing.T) {
	deleteCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session" && r.Method == http.MethodDelete {
			deleteCalls++
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := client.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect failed: %v", err)
	}

	if deleteCalls != 1 {
		t.Errorf("expected 1 DELETE, got %d", deleteCalls)
	}
	if client.SessionID() != "" {
		t.Error("sessionID should be cleared after disconnect")
	}
}

func TestClient_Status(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  bool
	}{
		{"ready", map[string]interface{}{"ready": true, "message": "The server is ready"}, true},
		{"not ready", map[string]interface{}{"ready": false}, false},
		{"legacy build info", map[string]interface{}{"build": map[string]interface{}{"version": "1.22.3"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/status" {
					writeJSON(w, map[string]interface{}{"value": tt.value})
					return
				}
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			ready, err := NewClient(server.URL).Status(context.Background())
			if err != nil {
				t.Fatalf("Status failed: %v", err)
			}
			if ready != tt.want {
				t.Errorf("expected ready=%v, got %v", tt.want, ready)
			}
		})
	}
}

func TestClient_FindElement(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session/element" && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			writeJSON(w, map[string]interface{}{
				"value": map[string]interface{}{
					w3cElementKey: "elem-123",
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	elemID, err := client.FindElement(context.Background(), "xpath", "//android.view.View[@text='Password']")
	if err != nil {
		t.Fatalf("FindElement failed: %v", err)
	}
	if elemID != "elem-123" {
		t.Errorf("Expected element ID 'elem-123', got '%s'", elemID)
	}
	if gotBody["using"] != "xpath" || gotBody["value"] != "//android.view.View[@text='Password']" {
		t.Errorf("unexpected request body %v", gotBody)
	}
}

func TestClient_FindElement_NoSuchElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNoSuchElement, "An element could not be located on the page")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	_, err := client.FindElement(context.Background(), "xpath", "//missing")
	if !IsNoSuchElement(err) {
		t.Errorf("expected no such element, got %v", err)
	}
}

func TestClient_FindElement_LegacyID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"value": map[string]interface{}{"ELEMENT": "legacy-1"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	id, err := client.FindElement(context.Background(), "xpath", "//a")
	if err != nil {
		t.Fatalf("FindElement failed: %v", err)
	}
	if id != "legacy-1" {
		t.Errorf("expected legacy-1, got %s", id)
	}
}

func TestClient_FindElements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session/elements" && r.Method == http.MethodPost {
			writeJSON(w, map[string]interface{}{
				"value": []interface{}{
					map[string]interface{}{w3cElementKey: "elem-1"},
					map[string]interface{}{w3cElementKey: "elem-2"},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	ids, err := client.FindElements(context.Background(), "xpath", "//*")
	if err != nil {
		t.Fatalf("FindElements failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != "elem-1" || ids[1] != "elem-2" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestClient_FindElements_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	ids, err := client.FindElements(context.Background(), "xpath", "//android.widget.Button[@text='Allow']")
	if err != nil {
		t.Fatalf("FindElements failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
}

func TestClient_ClickElement(t *testing.T) {
	clicked := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/s/element/el-9/click" && r.Method == http.MethodPost {
			clicked = true
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	if err := client.ClickElement(context.Background(), "el-9"); err != nil {
		t.Fatalf("ClickElement failed: %v", err)
	}
	if !clicked {
		t.Error("click endpoint was not called")
	}
}

func TestClient_SendKeysToElement(t *testing.T) {
	var body struct {
		Text  string   `json:"text"`
		Value []string `json:"value"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/s/element/input-1/value" && r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	if err := client.SendKeysToElement(context.Background(), "input-1", "zaś@x.pl"); err != nil {
		t.Fatalf("SendKeysToElement failed: %v", err)
	}
	if body.Text != "zaś@x.pl" {
		t.Errorf("unexpected text %q", body.Text)
	}
	if len(body.Value) != 8 || body.Value[2] != "ś" {
		t.Errorf("expected per-rune value array, got %v", body.Value)
	}
}

func TestClient_GetElementAttribute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s/element/a/attribute/focused":
			writeJSON(w, map[string]interface{}{"value": "true"})
		case "/session/s/element/b/attribute/focused":
			writeJSON(w, map[string]interface{}{"value": false})
		case "/session/s/element/c/attribute/focused":
			writeJSON(w, map[string]interface{}{"value": nil})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	tests := map[string]string{"a": "true", "b": "false", "c": ""}
	for id, want := range tests {
		got, err := client.GetElementAttribute(context.Background(), id, "focused")
		if err != nil {
			t.Fatalf("GetElementAttribute(%s) failed: %v", id, err)
		}
		if got != want {
			t.Errorf("GetElementAttribute(%s) = %q, want %q", id, got, want)
		}
	}
}

func TestClient_DisplayedEnabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/s/element/e/displayed":
			writeJSON(w, map[string]interface{}{"value": true})
		case "/session/s/element/e/enabled":
			writeJSON(w, map[string]interface{}{"value": false})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	displayed, err := client.IsElementDisplayed(context.Background(), "e")
	if err != nil || !displayed {
		t.Errorf("expected displayed, got %v (%v)", displayed, err)
	}
	enabled, err := client.IsElementEnabled(context.Background(), "e")
	if err != nil || enabled {
		t.Errorf("expected disabled, got %v (%v)", enabled, err)
	}
}

func TestClient_Screenshot(t *testing.T) {
	expectedData := []byte("fake-png-data")
	encoded := base64.StdEncoding.EncodeToString(expectedData)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session/screenshot" {
			writeJSON(w, map[string]interface{}{
				"value": encoded,
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	data, err := client.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if string(data) != string(expectedData) {
		t.Errorf("Screenshot data mismatch")
	}
}

func TestClient_Source(t *testing.T) {
	expectedSource := `<hierarchy><android.widget.TextView text="Zapisać dane logowania?"/></hierarchy>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/test-session/source" {
			writeJSON(w, map[string]interface{}{
				"value": expectedSource,
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "test-session"

	source, err := client.Source(context.Background())
	if err != nil {
		t.Fatalf("Source failed: %v", err)
	}
	if source != expectedSource {
		t.Errorf("Expected source '%s', got '%s'", expectedSource, source)
	}
}

func TestClient_SetImplicitWait(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/session/s/timeouts" {
			_ = json.NewDecoder(r.Body).Decode(&body)
			writeJSON(w, map[string]interface{}{"value": nil})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	if err := client.SetImplicitWait(context.Background(), 0); err != nil {
		t.Fatalf("SetImplicitWait failed: %v", err)
	}
	if body["implicit"] != float64(0) {
		t.Errorf("expected implicit 0, got %v", body["implicit"])
	}
}

func TestClient_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	client.sessionID = "s"

	_, err := client.Source(context.Background())
	var wdErr *WebDriverError
	if !errors.As(err, &wdErr) {
		t.Fatalf("expected WebDriverError, got %v", err)
	}
	if wdErr.Status != http.StatusBadGateway || wdErr.Message != "upstream down" {
		t.Errorf("unexpected error %+v", wdErr)
	}
}

// hangingServer blocks every request until the client gives up.
func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(10 * time.Second):
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClient_RequestCanceledWithContext(t *testing.T) {
	server := hangingServer(t)
	client := NewClient(server.URL)
	client.sessionID = "s"

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := client.FindElement(ctx, "xpath", "//a")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("request outlived its context by %v", elapsed)
	}
}

func TestClient_CommandTimeout(t *testing.T) {
	server := hangingServer(t)
	client := NewClient(server.URL)
	client.sessionID = "s"
	client.SetCommandTimeout(50 * time.Millisecond)

	_, err := client.Source(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}
