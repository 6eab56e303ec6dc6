// Package surface defines the rendering surface the scrapers drive.
//
// A Surface is a live, client-side rendered page: elements are located by
// CSS selector, waited for, clicked and hovered, and read back as text,
// attributes or computed styles. Element handles are only valid until the
// page re-renders; using a detached handle fails with ErrStale. A surface
// also manages browsing contexts (tabs) so detail pages can be opened and
// closed without losing the list page.
//
// Chrome implements Surface on top of chromedp. The surfacetest package
// provides an in-memory implementation for tests.
package surface
