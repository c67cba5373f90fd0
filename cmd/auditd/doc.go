// Command auditd runs the audit HTTP service: it accepts audit submissions, executes
// them on a worker pool and serves their status and reports until it receives
// SIGINT or SIGTERM.
package main
