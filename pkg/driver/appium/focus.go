package appium

import (
	"context"

	"github.com/devicelab-dev/applogin-e2e/pkg/core"
	"github.com/devicelab-dev/applogin-e2e/pkg/logger"
)

// allElementsXPath matches every node in the hierarchy.
const allElementsXPath = "//*"

// AttributeReader is a Finder that can read element attributes.
type AttributeReader interface {
	Finder
	GetElementAttribute(ctx context.Context, elementID, name string) (string, error)
}

// FocusedElement returns the first rendered element whose "focused"
// attribute is "true". UiAutomator2 has no usable active-element endpoint
// for views focused by tapping a label, so every element is checked in
// document order.
//
// Elements whose attribute cannot be read (usually stale after a relayout)
// are skipped.
func FocusedElement(ctx context.Context, s AttributeReader) (string, error) {
	ids, err := s.FindElements(ctx, "xpath", allElementsXPath)
	if err != nil {
		logger.Warn("focused element scan: listing elements failed: %v", err)
		return "", core.ErrFocusedElementNotFound.WithCause(err)
	}

	for _, id := range ids {
		focused, err := s.GetElementAttribute(ctx, id, "focused")
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.Debug("focused element scan: skipping %s: %v", id, err)
			continue
		}
		if focused == "true" {
			logger.Debug("focused element scan: %s of %d elements", id, len(ids))
			return id, nil
		}
	}

	return "", core.ErrFocusedElementNotFound.WithDetails(map[string]interface{}{"scanned": len(ids)})
}
