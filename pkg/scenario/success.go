package scenario

import (
	"strings"

	"github.com/devicelab-dev/applogin-e2e/pkg/config"
	"github.com/devicelab-dev/applogin-e2e/pkg/driver/appium"
	"github.com/devicelab-dev/applogin-e2e/pkg/jsengine"
	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
)

// loginSucceeded decides whether the page source shows a logged-in screen.
// With a success script the script decides; otherwise the marker text must
// appear somewhere in the source.
func loginSucceeded(cfg *config.Config, source string) (bool, error) {
	if cfg.Success.Script == "" {
		return strings.Contains(source, cfg.Success.Text), nil
	}

	var texts []interface{}
	if elements, err := appium.ParsePageSource(source); err == nil {
		for _, t := range appium.VisibleTexts(elements) {
			texts = append(texts, t)
		}
	}

	engine := jsengine.New()
	engine.SetVariables(map[string]interface{}{
		"pageSource":   source,
		"visibleTexts": texts,
		"successText":  cfg.Success.Text,
		"appPackage":   cfg.App.Package,
	})
	ok, err := engine.EvalBool(cfg.Success.Script)
	if out := engine.GetOutput(); len(out) > 0 {
		logger.Info("success script output: %v", out)
	}
	return ok, err
}
