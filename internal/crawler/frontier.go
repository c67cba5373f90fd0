package crawler

import "strings"

// frontier is a FIFO queue plus the set of every URL ever enqueued, so no URL is
// queued or fetched twice.
type frontier struct {
	queue    []string
	seen     map[string]struct{}
	excluded map[string]struct{}
}

func newFrontier() *frontier {
	return &frontier{
		seen:     make(map[string]struct{}),
		excluded: make(map[string]struct{}),
	}
}

func (f *frontier) push(u string) bool {
	if _, ok := f.seen[u]; ok {
		return false
	}
	f.seen[u] = struct{}{}
	f.queue = append(f.queue, u)
	return true
}

func (f *frontier) pop() (string, bool) {
	if len(f.queue) == 0 {
		return "", false
	}
	next := f.queue[0]
	f.queue[0] = ""
	f.queue = f.queue[1:]
	return next, true
}

func (f *frontier) exclude(u string) {
	f.excluded[u] = struct{}{}
}

func (f *frontier) excludedCount() int {
	return len(f.excluded)
}

func equalHost(a, b string) bool {
	return strings.EqualFold(a, b)
}
