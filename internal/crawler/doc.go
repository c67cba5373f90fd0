// Package crawler discovers the pages of one site breadth-first from a seed URL,
// bounded by a page cap and regex exclusions. Traversal is sequential; the frontier
// is owned by a single Crawl call.
package crawler
