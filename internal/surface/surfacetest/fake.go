// Package surfacetest provides an in-memory surface.Surface for tests.
//
// Fake holds one goquery document per browsing context. Element handles
// carry the generation of the document they were located in; re-rendering a
// context with Render bumps the generation so older handles fail with
// surface.ErrStale, the way a live page invalidates nodes on re-render.
// Patch edits a document in place without invalidating handles, which is how
// tooltips and expanded sections behave. Hooks script what clicks, hovers and
// new-tab activations do.
package surfacetest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pfrederiksen/status-history/internal/surface"
)

// Node is the element handle returned by Fake.
type Node struct {
	Sel *goquery.Selection
	tab surface.ContextID
	gen int
}

func (n *Node) String() string {
	if n == nil || n.Sel == nil || n.Sel.Length() == 0 {
		return "<nil>"
	}
	return fmt.Sprintf("%s@%s/%d", goquery.NodeName(n.Sel), n.tab, n.gen)
}

// Attr returns an attribute of the node or "".
func (n *Node) Attr(name string) string {
	v, _ := n.Sel.Attr(name)
	return v
}

// HasClass reports whether the node carries the CSS class.
func (n *Node) HasClass(class string) bool {
	return n.Sel.HasClass(class)
}

type tab struct {
	id  surface.ContextID
	doc *goquery.Document
	gen int
}

// Fake is a scripted, single-threaded surface.Surface.
type Fake struct {
	tabs   []*tab
	active surface.ContextID
	nextID int

	// OnClick runs after a click on a live element.
	OnClick func(f *Fake, n *Node) error
	// OnHover runs after the pointer moves over a live element.
	OnHover func(f *Fake, n *Node) error
	// OnOpen returns the document of the context opened from n.
	OnOpen func(f *Fake, n *Node) (string, error)

	// Calls counts invocations per method name.
	Calls map[string]int
	// Navigated lists every URL passed to Navigate.
	Navigated []string
	// LastModifier is the modifier of the most recent OpenInNewContext.
	LastModifier surface.Modifier

	failures map[string][]error
}

var _ surface.Surface = (*Fake)(nil)

// New creates a fake with one browsing context rendering html.
func New(html string) *Fake {
	f := &Fake{
		Calls:    make(map[string]int),
		failures: make(map[string][]error),
	}
	t := f.newTab(html)
	f.active = t.id
	return f
}

func mustParse(html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("surfacetest: parsing html: %v", err))
	}
	return doc
}

func (f *Fake) newTab(html string) *tab {
	f.nextID++
	t := &tab{id: surface.ContextID(fmt.Sprintf("ctx-%d", f.nextID)), doc: mustParse(html)}
	f.tabs = append(f.tabs, t)
	return t
}

func (f *Fake) tab(id surface.ContextID) *tab {
	for _, t := range f.tabs {
		if t.id == id {
			return t
		}
	}
	return nil
}

// Render replaces the document of the active context and invalidates every
// handle located in it.
func (f *Fake) Render(html string) {
	t := f.tab(f.active)
	if t == nil {
		panic("surfacetest: Render without an active context")
	}
	t.doc = mustParse(html)
	t.gen++
}

// Patch replaces the inner HTML of every element matching sel in the active
// context. Existing handles stay valid.
func (f *Fake) Patch(sel, html string) {
	t := f.tab(f.active)
	if t == nil {
		panic("surfacetest: Patch without an active context")
	}
	t.doc.Find(sel).SetHtml(html)
}

// Doc returns the document of the active context.
func (f *Fake) Doc() *goquery.Document {
	if t := f.tab(f.active); t != nil {
		return t.doc
	}
	return nil
}

// Active returns the active context id, "" when none is active.
func (f *Fake) Active() surface.ContextID {
	return f.active
}

// Open returns the ids of all open contexts.
func (f *Fake) Open() []surface.ContextID {
	ids := make([]surface.ContextID, 0, len(f.tabs))
	for _, t := range f.tabs {
		ids = append(ids, t.id)
	}
	return ids
}

// FailNext queues errors returned by the next calls of method, one per call.
func (f *Fake) FailNext(method string, errs ...error) {
	f.failures[method] = append(f.failures[method], errs...)
}

func (f *Fake) call(method string) error {
	f.Calls[method]++
	if q := f.failures[method]; len(q) > 0 {
		f.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) live(el surface.Element) (*Node, error) {
	n, ok := el.(*Node)
	if !ok || n == nil {
		return nil, fmt.Errorf("surfacetest: foreign element %v", el)
	}
	if n.tab != f.active {
		return nil, fmt.Errorf("%w: %s is not in the active context", surface.ErrStale, n)
	}
	t := f.tab(n.tab)
	if t == nil || t.gen != n.gen {
		return nil, fmt.Errorf("%w: %s", surface.ErrStale, n)
	}
	return n, nil
}

func (f *Fake) wrap(sel *goquery.Selection) []surface.Element {
	t := f.tab(f.active)
	out := make([]surface.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Node{Sel: s, tab: t.id, gen: t.gen})
	})
	return out
}

func (f *Fake) find(sel string) (*goquery.Selection, error) {
	doc := f.Doc()
	if doc == nil {
		return nil, fmt.Errorf("surfacetest: no active context")
	}
	return doc.Find(sel), nil
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	if err := f.call("Navigate"); err != nil {
		return err
	}
	f.Navigated = append(f.Navigated, url)
	return nil
}

func (f *Fake) Locate(ctx context.Context, sel string) (surface.Element, error) {
	els, err := f.LocateAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %q", surface.ErrNotFound, sel)
	}
	return els[0], nil
}

func (f *Fake) LocateAll(ctx context.Context, sel string) ([]surface.Element, error) {
	if err := f.call("LocateAll"); err != nil {
		return nil, err
	}
	s, err := f.find(sel)
	if err != nil {
		return nil, err
	}
	return f.wrap(s), nil
}

func (f *Fake) LocateWithin(ctx context.Context, parent surface.Element, sel string) (surface.Element, error) {
	els, err := f.LocateAllWithin(ctx, parent, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %q", surface.ErrNotFound, sel)
	}
	return els[0], nil
}

func (f *Fake) LocateAllWithin(ctx context.Context, parent surface.Element, sel string) ([]surface.Element, error) {
	if err := f.call("LocateAllWithin"); err != nil {
		return nil, err
	}
	p, err := f.live(parent)
	if err != nil {
		return nil, err
	}
	return f.wrap(p.Sel.Find(sel)), nil
}

func (f *Fake) WaitPresent(ctx context.Context, sel string, timeout time.Duration) ([]surface.Element, error) {
	if err := f.call("WaitPresent"); err != nil {
		return nil, err
	}
	s, err := f.find(sel)
	if err != nil {
		return nil, err
	}
	if s.Length() == 0 {
		return nil, fmt.Errorf("%w: %q after %s", surface.ErrTimeout, sel, timeout)
	}
	return f.wrap(s), nil
}

func visible(s *goquery.Selection) bool {
	if _, hidden := s.Attr("hidden"); hidden {
		return false
	}
	style, _ := s.Attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return !strings.Contains(style, "display:none") && !strings.Contains(style, "visibility:hidden")
}

func (f *Fake) WaitVisible(ctx context.Context, sel string, timeout time.Duration) (surface.Element, error) {
	if err := f.call("WaitVisible"); err != nil {
		return nil, err
	}
	s, err := f.find(sel)
	if err != nil {
		return nil, err
	}
	first := s.First()
	if first.Length() == 0 || !visible(first) {
		return nil, fmt.Errorf("%w: %q not visible after %s", surface.ErrTimeout, sel, timeout)
	}
	return f.wrap(first)[0], nil
}

func (f *Fake) WaitContexts(ctx context.Context, n int, timeout time.Duration) error {
	if err := f.call("WaitContexts"); err != nil {
		return err
	}
	if len(f.tabs) != n {
		return fmt.Errorf("%w: %d browsing contexts open, want %d", surface.ErrTimeout, len(f.tabs), n)
	}
	return nil
}

func (f *Fake) Click(ctx context.Context, el surface.Element) error {
	if err := f.call("Click"); err != nil {
		return err
	}
	n, err := f.live(el)
	if err != nil {
		return err
	}
	if f.OnClick != nil {
		return f.OnClick(f, n)
	}
	return nil
}

func (f *Fake) Hover(ctx context.Context, el surface.Element) error {
	if err := f.call("Hover"); err != nil {
		return err
	}
	n, err := f.live(el)
	if err != nil {
		return err
	}
	if f.OnHover != nil {
		return f.OnHover(f, n)
	}
	return nil
}

func (f *Fake) Text(ctx context.Context, el surface.Element) (string, error) {
	if err := f.call("Text"); err != nil {
		return "", err
	}
	n, err := f.live(el)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(n.Sel.Text()), " "), nil
}

func (f *Fake) Attribute(ctx context.Context, el surface.Element, name string) (string, bool, error) {
	if err := f.call("Attribute"); err != nil {
		return "", false, err
	}
	n, err := f.live(el)
	if err != nil {
		return "", false, err
	}
	v, ok := n.Sel.Attr(name)
	return v, ok, nil
}

// ComputedStyle reads the property from the element's inline style.
func (f *Fake) ComputedStyle(ctx context.Context, el surface.Element, property string) (string, error) {
	if err := f.call("ComputedStyle"); err != nil {
		return "", err
	}
	n, err := f.live(el)
	if err != nil {
		return "", err
	}
	style, _ := n.Sel.Attr("style")
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), property) {
			return strings.TrimSpace(value), nil
		}
	}
	return "", fmt.Errorf("%w: style %q on %s", surface.ErrNotFound, property, n)
}

func (f *Fake) OuterHTML(ctx context.Context, el surface.Element) (string, error) {
	if err := f.call("OuterHTML"); err != nil {
		return "", err
	}
	n, err := f.live(el)
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(n.Sel)
}

// OpenInNewContext opens a background context whose document comes from OnOpen.
// The active context does not change.
func (f *Fake) OpenInNewContext(ctx context.Context, el surface.Element, mod surface.Modifier) error {
	if err := f.call("OpenInNewContext"); err != nil {
		return err
	}
	n, err := f.live(el)
	if err != nil {
		return err
	}
	f.LastModifier = mod
	if f.OnOpen == nil {
		return fmt.Errorf("surfacetest: no OnOpen hook for %s", n)
	}
	html, err := f.OnOpen(f, n)
	if err != nil {
		return err
	}
	f.newTab(html)
	return nil
}

func (f *Fake) CurrentContext(ctx context.Context) (surface.ContextID, error) {
	if err := f.call("CurrentContext"); err != nil {
		return "", err
	}
	if f.active == "" {
		return "", fmt.Errorf("surfacetest: no active context")
	}
	return f.active, nil
}

func (f *Fake) Contexts(ctx context.Context) ([]surface.ContextID, error) {
	if err := f.call("Contexts"); err != nil {
		return nil, err
	}
	return f.Open(), nil
}

func (f *Fake) SwitchContext(ctx context.Context, id surface.ContextID) error {
	if err := f.call("SwitchContext"); err != nil {
		return err
	}
	if f.tab(id) == nil {
		return fmt.Errorf("surfacetest: no browsing context %s", id)
	}
	f.active = id
	return nil
}

func (f *Fake) CloseContext(ctx context.Context, id surface.ContextID) error {
	if err := f.call("CloseContext"); err != nil {
		return err
	}
	for i, t := range f.tabs {
		if t.id == id {
			f.tabs = append(f.tabs[:i], f.tabs[i+1:]...)
			if f.active == id {
				f.active = ""
			}
			return nil
		}
	}
	return fmt.Errorf("surfacetest: no browsing context %s", id)
}
