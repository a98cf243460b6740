package announce

import (
	"regexp"
	"strings"
)

// labPattern matches the lab token at the start of an entry.
var labPattern = regexp.MustCompile(`^([A-Za-z0-9]+)-`)

// Group is the ordered list of entries for one lab.
type Group struct {
	Key     string
	Entries []string
}

// Groups keeps groups in the order their key was first seen.
type Groups []Group

// Keys returns the group keys in order.
func (gs Groups) Keys() []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.Key)
	}
	return out
}

// Entries returns the number of entries across all groups.
func (gs Groups) Entries() int {
	n := 0
	for _, g := range gs {
		n += len(g.Entries)
	}
	return n
}

// LabKey extracts the normalized lab key of a trimmed line.
func LabKey(line string) (string, bool) {
	m := labPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// ParseGroups splits raw into trimmed, non-empty lines and groups them by lab
// key. Unmatched lines are dropped; duplicates are kept.
func ParseGroups(raw string) Groups {
	var (
		groups Groups
		index  = map[string]int{}
	)
	for _, line := range splitLines(raw) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, ok := LabKey(line)
		if !ok {
			continue
		}
		i, seen := index[key]
		if !seen {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Entries = append(groups[i].Entries, line)
	}
	return groups
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
