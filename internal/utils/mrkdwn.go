package utils

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// MarkdownToMrkdwn converts model-produced Markdown into Slack mrkdwn.
// Headings become bold lines, links become <url|label>, lists get plain bullets.
func MarkdownToMrkdwn(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}

	source := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var b strings.Builder
	listCounters := make(map[ast.Node]int)

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if entering {
				b.WriteString("*")
			} else {
				b.WriteString("*\n\n")
			}

		case *ast.Paragraph:
			if !entering {
				if _, inItem := node.Parent().(*ast.ListItem); inItem {
					b.WriteString("\n")
				} else {
					b.WriteString("\n\n")
				}
			}

		case *ast.TextBlock:
			if !entering {
				b.WriteString("\n")
			}

		case *ast.Text:
			if entering {
				b.WriteString(mrkdwnEscaper.Replace(string(node.Segment.Value(source))))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString("\n")
				}
			}

		case *ast.String:
			if entering {
				b.WriteString(mrkdwnEscaper.Replace(string(node.Value)))
			}

		case *ast.Emphasis:
			marker := "_"
			if node.Level >= 2 {
				marker = "*"
			}
			b.WriteString(marker)

		case *ast.CodeSpan:
			b.WriteString("`")

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				b.WriteString("```\n")
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(source))
				}
				b.WriteString("```\n\n")
			}
			return ast.WalkSkipChildren, nil

		case *ast.Link:
			if entering {
				b.WriteString("<" + string(node.Destination) + "|")
			} else {
				b.WriteString(">")
			}

		case *ast.Image:
			if entering {
				b.WriteString("<" + string(node.Destination) + "|")
			} else {
				b.WriteString(">")
			}

		case *ast.AutoLink:
			if entering {
				b.WriteString("<" + string(node.URL(source)) + ">")
			}
			return ast.WalkSkipChildren, nil

		case *ast.List:
			if entering && node.IsOrdered() {
				listCounters[node] = node.Start
			}
			if !entering {
				delete(listCounters, node)
				if _, nested := node.Parent().(*ast.ListItem); !nested {
					b.WriteString("\n")
				}
			}

		case *ast.ListItem:
			if entering {
				b.WriteString(strings.Repeat("    ", listDepth(node)-1))
				if list, ok := node.Parent().(*ast.List); ok && list.IsOrdered() {
					b.WriteString(strconv.Itoa(listCounters[list]) + ". ")
					listCounters[list]++
				} else {
					b.WriteString("• ")
				}
			}

		case *ast.Blockquote:
			if entering {
				b.WriteString("> ")
			}

		case *ast.ThematicBreak:
			if entering {
				b.WriteString("---\n\n")
			}

		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// listDepth counts the list nodes above an item
func listDepth(n ast.Node) int {
	depth := 0
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	return depth
}
