// Package browsertest provides a scriptable in-memory browser.Browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tonimelisma/pbi-refresh-monitor/internal/browser"
)

// Typed records one Type call.
type Typed struct {
	Selector string
	Value    string
}

// Fake is a browser.Browser whose page is whatever the test says it is.
// Hooks run without the internal lock held, so they may call the setters to
// script page transitions (a click revealing the next form, a navigation
// landing on a sign-in page).
type Fake struct {
	mu sync.Mutex

	url         string
	source      string
	visible     map[string]bool
	readyStates []string

	// OnNavigate runs after the URL has been set. A returned error is
	// passed to the caller.
	OnNavigate func(f *Fake, url string) error
	// OnClick runs after a click has been recorded.
	OnClick func(f *Fake, selector string) error
	// OnType runs after a Type call has been recorded.
	OnType func(f *Fake, selector, value string) error
	// WaitVisibleErr, when set, is returned by every WaitVisible call.
	WaitVisibleErr error

	navigations []string
	clicks      []string
	typed       []Typed
	quits       int
}

// New returns a Fake with the given selectors visible.
func New(visible ...string) *Fake {
	f := &Fake{visible: make(map[string]bool)}
	f.Show(visible...)
	return f
}

// Show makes selectors visible.
func (f *Fake) Show(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		f.visible[s] = true
	}
}

// Hide makes selectors invisible.
func (f *Fake) Hide(selectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range selectors {
		delete(f.visible, s)
	}
}

// HideAll clears every visible selector.
func (f *Fake) HideAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = make(map[string]bool)
}

// SetURL changes the current URL without recording a navigation.
func (f *Fake) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

// SetSource sets the HTML returned by PageSource.
func (f *Fake) SetSource(html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.source = html
}

// SetReadyStates queues document.readyState answers. The last one repeats.
// With none queued the page is always complete.
func (f *Fake) SetReadyStates(states ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyStates = states
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	f.url = url
	f.navigations = append(f.navigations, url)
	hook := f.OnNavigate
	f.mu.Unlock()

	if hook != nil {
		return hook(f, url)
	}
	return nil
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *Fake) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WaitVisibleErr != nil {
		return f.WaitVisibleErr
	}
	if !f.visible[selector] {
		return fmt.Errorf("%w: %s", browser.ErrElementTimeout, selector)
	}
	return nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	if !f.visible[selector] {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrElementTimeout, selector)
	}
	f.clicks = append(f.clicks, selector)
	hook := f.OnClick
	f.mu.Unlock()

	if hook != nil {
		return hook(f, selector)
	}
	return nil
}

func (f *Fake) Type(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	if !f.visible[selector] {
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrElementTimeout, selector)
	}
	f.typed = append(f.typed, Typed{Selector: selector, Value: value})
	hook := f.OnType
	f.mu.Unlock()

	if hook != nil {
		return hook(f, selector, value)
	}
	return nil
}

func (f *Fake) ReadyState(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch len(f.readyStates) {
	case 0:
		return browser.ReadyStateComplete, nil
	case 1:
		return f.readyStates[0], nil
	}
	state := f.readyStates[0]
	f.readyStates = f.readyStates[1:]
	return state, nil
}

func (f *Fake) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source, nil
}

func (f *Fake) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quits++
	return nil
}

// Navigations returns every URL passed to Navigate, in order.
func (f *Fake) Navigations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.navigations...)
}

// Clicks returns every clicked selector, in order.
func (f *Fake) Clicks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.clicks...)
}

// Typed returns every Type call, in order.
func (f *Fake) Typed() []Typed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Typed(nil), f.typed...)
}

// QuitCalls returns how many times Quit was called.
func (f *Fake) QuitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quits
}

// Factory returns a browser.Factory handing out f.
func (f *Fake) Factory() browser.Factory {
	return func(ctx context.Context) (browser.Browser, error) {
		return f, nil
	}
}
