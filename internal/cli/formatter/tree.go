package formatter

import (
	"fmt"
	"strings"
)

// TreeItem represents a single node in a tree display.
type TreeItem struct {
	Title   string
	Level   int
	IsLast  bool
	Version int64
	Detail  string // right-hand badge, e.g. the order key
}

const (
	treeBranch = "├─ "
	treeCorner = "└─ "
	treePipe   = "│  "
)

// RenderTree renders a list of TreeItems as an indented tree using
// box-drawing characters for connectors. Version stamps are rendered as dim
// suffixes and detail badges are appended in blue.
func RenderTree(items []TreeItem) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	for _, item := range items {
		var prefix string
		if item.Level > 0 {
			for i := 1; i < item.Level; i++ {
				prefix += treePipe
			}
			if item.IsLast {
				prefix += treeCorner
			} else {
				prefix += treeBranch
			}
		}

		line := prefix + StyleFg.Render(item.Title) + " " + StyleDim.Render(fmt.Sprintf("v%d", item.Version))
		if item.Detail != "" {
			line += " " + StyleBlue.Render(fmt.Sprintf("[ %s ]", item.Detail))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
