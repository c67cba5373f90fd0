package linkcheck

import "strings"

// domainList matches hosts against exact entries and suffix wildcards. A plain entry
// also matches its subdomains, so "facebook.com" covers "m.facebook.com".
type domainList struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainList(patterns []string) *domainList {
	list := &domainList{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(value, "*")
		value = strings.TrimPrefix(value, ".")
		if value == "" {
			continue
		}
		list.exact[value] = struct{}{}
		list.addSuffix(value)
	}
	if len(list.exact) == 0 {
		return nil
	}
	return list
}

func (d *domainList) addSuffix(suffix string) {
	for _, existing := range d.suffixes {
		if existing == suffix {
			return
		}
	}
	d.suffixes = append(d.suffixes, suffix)
}

// Contains reports whether host is listed. A nil list contains nothing.
func (d *domainList) Contains(host string) bool {
	if d == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, exact := d.exact[host]; exact {
		return true
	}
	for _, suffix := range d.suffixes {
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
