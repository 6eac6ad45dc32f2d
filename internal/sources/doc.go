// Package sources holds one availability.Adapter per booking site and the
// registry that selects which of them run.
//
// Adapters drive a page the way a visitor would, read the rendered document
// with goquery, and return a normalized snapshot. Parsing lives in pure
// functions so fixtures can exercise it without a browser.
package sources
