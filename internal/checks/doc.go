// Package checks implements the audit rules run against every fetched page.
//
// Each checker is enabled or disabled through checks.<name>_check.enabled and takes
// its severity from checks.<name>_check.severity. A Builder assembles a fresh set for
// every run from a derived copy of the configuration.
package checks
