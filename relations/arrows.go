package relations

import (
	"bufio"
	"strings"
)

const arrow = "->"

// ParseArrows reads relationship statements of the form
//
//	Alice -> is deeply in love with -> Bob
//
// one per line, ignoring list markers and lines that do not have exactly
// three non-empty parts. Parsed edges carry zero trust.
func ParseArrows(text string) []Edge {
	var edges []Edge

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimRight(line, ".")

		parts := strings.Split(line, arrow)
		if len(parts) != 3 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			continue
		}

		edges = append(edges, Edge{Source: parts[0], Label: parts[1], Target: parts[2]})
	}
	return edges
}
