// Package session hands adapters a live page for exactly one run and tears it
// down afterwards, whether the run succeeded, failed, timed out or panicked.
//
// Pages come from a shared headless browser when a source needs script, or
// from a static HTTP fetch that is promoted to the browser when the response
// looks like a script shell or a challenge interstitial.
package session
