// Package linkcheck validates hyperlinks found on audited pages.
//
// A Validator is created per run and shared by every check task of that run. It
// memoizes outcomes by the literal URL string, collapses concurrent probes of the
// same URL, and only ever sends the site credential to internal hosts.
package linkcheck
