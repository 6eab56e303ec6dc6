package surface

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/pfrederiksen/status-history/internal/logger"
)

const (
	DefaultOpTimeout       = 10 * time.Second
	DefaultNavigateTimeout = 30 * time.Second

	contextPollInterval = 100 * time.Millisecond
)

// staleMessages are DevTools protocol error fragments reported when a node
// id no longer resolves because the document changed under it.
var staleMessages = []string{
	"could not find node with given id",
	"no node with given id",
	"node with given id does not belong to the document",
	"node is detached from document",
	"cannot find context with specified id",
	"node is not an element",
}

// ChromeOptions configures the browser session started by NewChrome.
type ChromeOptions struct {
	Headless        bool
	ExecPath        string
	UserAgent       string
	OpTimeout       time.Duration
	NavigateTimeout time.Duration
}

type chromeTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type chromeNode struct {
	node  *cdp.Node
	owner ContextID
}

func (n *chromeNode) String() string {
	return fmt.Sprintf("%s#%d@%s", strings.ToLower(n.node.NodeName), n.node.NodeID, n.owner)
}

// Chrome is a Surface backed by a Chrome browser driven through chromedp.
type Chrome struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	root   ContextID
	active ContextID
	tabs   map[ContextID]*chromeTab

	opTimeout       time.Duration
	navigateTimeout time.Duration
}

// NewChrome starts a browser and attaches to its first tab.
// The caller must call Close when done.
func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	root := ContextID(chromedp.FromContext(browserCtx).Target.TargetID)

	c := &Chrome{
		allocCancel:     allocCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		root:            root,
		active:          root,
		tabs:            map[ContextID]*chromeTab{root: {ctx: browserCtx, cancel: browserCancel}},
		opTimeout:       opts.OpTimeout,
		navigateTimeout: opts.NavigateTimeout,
	}
	if c.opTimeout <= 0 {
		c.opTimeout = DefaultOpTimeout
	}
	if c.navigateTimeout <= 0 {
		c.navigateTimeout = DefaultNavigateTimeout
	}
	logger.Info("Browser started", logger.Fields{"headless": opts.Headless, "exec_path": opts.ExecPath})
	c.trackTabs()
	return c, nil
}

// trackTabs publishes the number of browsing contexts attached.
func (c *Chrome) trackTabs() {
	logger.SetGauge("browser.tabs", float64(len(c.tabs)))
}

// Close shuts down every tab and the browser process.
func (c *Chrome) Close() {
	open := 0
	for id, t := range c.tabs {
		if id != c.root {
			t.cancel()
			open++
		}
	}
	if open > 0 {
		logger.Warn("Closing browser with detail tabs still attached", logger.Fields{"tabs": open})
	}
	if err := chromedp.Cancel(c.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Closing browser failed", nil, err)
	}
	c.browserCancel()
	c.allocCancel()
	logger.Debug("Browser closed", nil)
}

// run executes actions in the active tab, bounded by timeout and by the
// caller's context.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	t, ok := c.tabs[c.active]
	if !ok {
		return fmt.Errorf("no active browsing context")
	}

	runCtx, cancel := context.WithTimeout(t.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return classify(err)
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range staleMessages {
		if strings.Contains(msg, frag) {
			return fmt.Errorf("%w: %v", ErrStale, err)
		}
	}
	return err
}

func (c *Chrome) node(el Element) (*chromeNode, error) {
	n, ok := el.(*chromeNode)
	if !ok || n == nil || n.node == nil {
		return nil, fmt.Errorf("foreign element handle %v", el)
	}
	if n.owner != c.active {
		return nil, fmt.Errorf("%w: %s belongs to another browsing context", ErrStale, n)
	}
	return n, nil
}

func (c *Chrome) wrap(nodes []*cdp.Node) []Element {
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromeNode{node: n, owner: c.active})
	}
	return out
}

func ids(n *chromeNode) []cdp.NodeID {
	return []cdp.NodeID{n.node.NodeID}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, c.navigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) query(ctx context.Context, sel string, parent Element) ([]Element, error) {
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if parent != nil {
		p, err := c.node(parent)
		if err != nil {
			return nil, err
		}
		opts = append(opts, chromedp.FromNode(p.node))
	}

	var nodes []*cdp.Node
	if err := c.run(ctx, c.opTimeout, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("locating %q: %w", sel, err)
	}
	return c.wrap(nodes), nil
}

func first(els []Element, sel string) (Element, error) {
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, sel)
	}
	return els[0], nil
}

func (c *Chrome) Locate(ctx context.Context, sel string) (Element, error) {
	els, err := c.query(ctx, sel, nil)
	if err != nil {
		return nil, err
	}
	return first(els, sel)
}

func (c *Chrome) LocateAll(ctx context.Context, sel string) ([]Element, error) {
	return c.query(ctx, sel, nil)
}

func (c *Chrome) LocateWithin(ctx context.Context, parent Element, sel string) (Element, error) {
	els, err := c.query(ctx, sel, parent)
	if err != nil {
		return nil, err
	}
	return first(els, sel)
}

func (c *Chrome) LocateAllWithin(ctx context.Context, parent Element, sel string) ([]Element, error) {
	return c.query(ctx, sel, parent)
}

func (c *Chrome) WaitPresent(ctx context.Context, sel string, timeout time.Duration) ([]Element, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, timeout, chromedp.Nodes(sel, &nodes, chromedp.ByQueryAll)); err != nil {
		return nil, fmt.Errorf("waiting for %q: %w", sel, err)
	}
	return c.wrap(nodes), nil
}

func (c *Chrome) WaitVisible(ctx context.Context, sel string, timeout time.Duration) (Element, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, timeout, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, fmt.Errorf("waiting for visible %q: %w", sel, err)
	}
	return first(c.wrap(nodes), sel)
}

func (c *Chrome) WaitContexts(ctx context.Context, n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		open, err := c.Contexts(ctx)
		if err != nil {
			return err
		}
		if len(open) == n {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %d browsing contexts open, want %d", ErrTimeout, len(open), n)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(contextPollInterval):
		}
	}
}

func (c *Chrome) Click(ctx context.Context, el Element) error {
	n, err := c.node(el)
	if err != nil {
		return err
	}
	if err := c.run(ctx, c.opTimeout, chromedp.MouseClickNode(n.node)); err != nil {
		return fmt.Errorf("clicking %s: %w", n, err)
	}
	return nil
}

func (c *Chrome) Hover(ctx context.Context, el Element) error {
	n, err := c.node(el)
	if err != nil {
		return err
	}

	hover := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.node.NodeID).Do(ctx); err != nil {
			return err
		}
		box, err := dom.GetBoxModel().WithNodeID(n.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if len(box.Border) < 8 {
			return fmt.Errorf("node %s has no layout box", n)
		}
		// center of the border quad
		var x, y float64
		for i := 0; i < 8; i += 2 {
			x += box.Border[i]
			y += box.Border[i+1]
		}
		return input.DispatchMouseEvent(input.MouseMoved, x/4, y/4).Do(ctx)
	})

	if err := c.run(ctx, c.opTimeout, hover); err != nil {
		return fmt.Errorf("hovering %s: %w", n, err)
	}
	return nil
}

func (c *Chrome) Text(ctx context.Context, el Element) (string, error) {
	n, err := c.node(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := c.run(ctx, c.opTimeout, chromedp.JavascriptAttribute(ids(n), "innerText", &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("reading text of %s: %w", n, err)
	}
	return strings.TrimSpace(text), nil
}

func (c *Chrome) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	n, err := c.node(el)
	if err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	if err := c.run(ctx, c.opTimeout, chromedp.AttributeValue(ids(n), name, &value, &ok, chromedp.ByNodeID)); err != nil {
		return "", false, fmt.Errorf("reading attribute %q of %s: %w", name, n, err)
	}
	return value, ok, nil
}

func (c *Chrome) ComputedStyle(ctx context.Context, el Element, property string) (string, error) {
	n, err := c.node(el)
	if err != nil {
		return "", err
	}
	var props []*css.ComputedStyleProperty
	if err := c.run(ctx, c.opTimeout, chromedp.ComputedStyle(ids(n), &props, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("reading computed style of %s: %w", n, err)
	}
	for _, p := range props {
		if p.Name == property {
			return p.Value, nil
		}
	}
	return "", fmt.Errorf("%w: computed style %q of %s", ErrNotFound, property, n)
}

func (c *Chrome) OuterHTML(ctx context.Context, el Element) (string, error) {
	n, err := c.node(el)
	if err != nil {
		return "", err
	}
	var html string
	if err := c.run(ctx, c.opTimeout, chromedp.OuterHTML(ids(n), &html, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("reading html of %s: %w", n, err)
	}
	return html, nil
}

func (c *Chrome) OpenInNewContext(ctx context.Context, el Element, mod Modifier) error {
	n, err := c.node(el)
	if err != nil {
		return err
	}

	var opts []chromedp.KeyOption
	switch mod {
	case ModifierControl:
		opts = append(opts, chromedp.KeyModifiers(input.ModifierCtrl))
	case ModifierMeta:
		opts = append(opts, chromedp.KeyModifiers(input.ModifierMeta))
	}

	if err := c.run(ctx, c.opTimeout, chromedp.KeyEventNode(n.node, kb.Enter, opts...)); err != nil {
		return fmt.Errorf("opening %s in a new browsing context: %w", n, err)
	}
	return nil
}

func (c *Chrome) CurrentContext(ctx context.Context) (ContextID, error) {
	if c.active == "" {
		return "", fmt.Errorf("no active browsing context")
	}
	return c.active, nil
}

func (c *Chrome) Contexts(ctx context.Context) ([]ContextID, error) {
	runCtx, cancel := context.WithTimeout(c.browserCtx, c.opTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	infos, err := chromedp.Targets(runCtx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("listing browsing contexts: %w", classify(err))
	}

	var out []ContextID
	for _, info := range infos {
		if info.Type == "page" {
			out = append(out, ContextID(info.TargetID))
		}
	}
	return out, nil
}

func (c *Chrome) SwitchContext(ctx context.Context, id ContextID) error {
	if _, ok := c.tabs[id]; ok {
		c.active = id
		return nil
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(target.ID(id)))
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("attaching to browsing context %s: %w", id, err)
	}
	c.tabs[id] = &chromeTab{ctx: tabCtx, cancel: cancel}
	c.active = id
	c.trackTabs()
	return nil
}

func (c *Chrome) CloseContext(ctx context.Context, id ContextID) error {
	if id == c.root {
		return fmt.Errorf("refusing to close the initial browsing context %s", id)
	}

	t, ok := c.tabs[id]
	if !ok {
		tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(target.ID(id)))
		t = &chromeTab{ctx: tabCtx, cancel: cancel}
	}
	defer func() {
		t.cancel()
		delete(c.tabs, id)
		if c.active == id {
			c.active = ""
		}
		c.trackTabs()
	}()

	runCtx, cancel := context.WithTimeout(t.ctx, c.opTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, page.Close()); err != nil {
		return fmt.Errorf("closing browsing context %s: %w", id, classify(err))
	}
	return nil
}
