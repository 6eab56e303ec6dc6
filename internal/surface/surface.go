package surface

import (
	"context"
	"errors"
	"runtime"
	"time"
)

var (
	// ErrStale indicates that an element handle is no longer attached to the
	// document because the page re-rendered between lookup and use.
	ErrStale = errors.New("element is stale or detached from the document")

	// ErrNotFound indicates that a non-waiting lookup matched no element.
	ErrNotFound = errors.New("element not found")

	// ErrTimeout indicates that a wait expired before its condition held.
	ErrTimeout = errors.New("timed out waiting for condition")
)

// Element is an opaque handle to a rendered node.
type Element interface {
	String() string
}

// ContextID identifies a browsing context (tab or window).
type ContextID string

// Modifier is a keyboard modifier held while activating an element.
type Modifier int

const (
	ModifierNone Modifier = iota
	ModifierControl
	ModifierMeta
)

func (m Modifier) String() string {
	switch m {
	case ModifierControl:
		return "control"
	case ModifierMeta:
		return "meta"
	}
	return "none"
}

// PlatformModifier returns the modifier that opens a link in a new tab on
// the current platform: command on macOS, control elsewhere.
func PlatformModifier() Modifier {
	return modifierFor(runtime.GOOS)
}

func modifierFor(goos string) Modifier {
	if goos == "darwin" {
		return ModifierMeta
	}
	return ModifierControl
}

// Surface is the capability set the scrapers need from a rendering engine.
// Calls are strictly sequential; none of them may be issued concurrently.
type Surface interface {
	Navigate(ctx context.Context, url string) error

	// Locate returns the first element matching sel, or ErrNotFound.
	Locate(ctx context.Context, sel string) (Element, error)
	// LocateAll returns all elements matching sel; an empty slice when none.
	LocateAll(ctx context.Context, sel string) ([]Element, error)
	LocateWithin(ctx context.Context, parent Element, sel string) (Element, error)
	LocateAllWithin(ctx context.Context, parent Element, sel string) ([]Element, error)

	// WaitPresent waits until at least one element matches sel and returns all matches.
	WaitPresent(ctx context.Context, sel string, timeout time.Duration) ([]Element, error)
	// WaitVisible waits until the first element matching sel is visible.
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) (Element, error)
	// WaitContexts waits until exactly n browsing contexts are open.
	WaitContexts(ctx context.Context, n int, timeout time.Duration) error

	Click(ctx context.Context, el Element) error
	Hover(ctx context.Context, el Element) error

	Text(ctx context.Context, el Element) (string, error)
	// Attribute returns the attribute value and whether it was present.
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)
	ComputedStyle(ctx context.Context, el Element, property string) (string, error)
	OuterHTML(ctx context.Context, el Element) (string, error)

	// OpenInNewContext activates el with the Enter key while holding mod.
	OpenInNewContext(ctx context.Context, el Element, mod Modifier) error
	CurrentContext(ctx context.Context) (ContextID, error)
	Contexts(ctx context.Context) ([]ContextID, error)
	SwitchContext(ctx context.Context, id ContextID) error
	CloseContext(ctx context.Context, id ContextID) error
}
