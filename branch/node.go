package branch

// Node is one entry in the story tree. ParentID is empty for roots.
type Node struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	ParentID    string `json:"parentId,omitempty"`
	Branch      string `json:"branch"`
	Contributor string `json:"contributor"`
	Votes       int64  `json:"votes"`
}

// IsRoot reports whether n has no parent.
func (n Node) IsRoot() bool {
	return n.ParentID == ""
}

// ShortID returns the display prefix of the node id.
func (n Node) ShortID() string {
	return truncate(n.ID, 6)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
