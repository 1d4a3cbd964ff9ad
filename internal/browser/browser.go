// Package browser defines the narrow driver surface the decision and
// recovery logic depends on. The core never assumes a selector dialect;
// implementations translate Locator strings however they need to.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Locate when no element matches.
	ErrNotFound = errors.New("browser: element not found")
	// ErrNotInteractable is returned when an element exists but refuses input.
	ErrNotInteractable = errors.New("browser: element not interactable")
	// ErrStale is returned when a previously located element left the page.
	ErrStale = errors.New("browser: element reference is stale")
)

// Element is an opaque handle to a located form element. The locator it was
// resolved from is retained so recovery can re-resolve it after a reload.
type Element struct {
	Locator string
}

// Driver is the browser-driving collaborator.
type Driver interface {
	Locate(ctx context.Context, locator string) (*Element, error)
	ReadValue(ctx context.Context, el *Element) (string, error)
	WriteValue(ctx context.Context, el *Element, value string) error
	Click(ctx context.Context, el *Element) error
	PageText(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)
}

// DirectWriter is implemented by drivers that can assign an element's value
// directly and dispatch a change notification, bypassing synthetic keyboard
// input. Recovery prefers this channel when the primary one fails.
type DirectWriter interface {
	WriteValueDirect(ctx context.Context, el *Element, value string) error
}

// CookieClearer is implemented by drivers that can drop session cookies.
// Used when anti-automation detection forces a fresh session.
type CookieClearer interface {
	ClearCookies(ctx context.Context) error
}

// RequiredChecker reports whether a form element is marked required.
// Drivers that cannot tell should return true to stay on the safe side.
type RequiredChecker interface {
	IsRequired(ctx context.Context, el *Element) (bool, error)
}
