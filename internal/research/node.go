package research

import (
	"strconv"
	"strings"
)

// RootNodeID is the id of the top of the research tree.
const RootNodeID = "0"

// ChildNodeID returns the id of child i of parent. Ids encode tree position:
// child i of "0-1" is "0-1-i".
func ChildNodeID(parent string, i int) string {
	return parent + "-" + strconv.Itoa(i)
}

// ParentNodeID returns the parent id of a child id, or the id itself when it
// has no parent separator.
func ParentNodeID(id string) string {
	idx := strings.LastIndex(id, "-")
	if idx < 0 {
		return id
	}
	return id[:idx]
}
