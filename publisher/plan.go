package publisher

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"book_ghostwriter/storage"
)

var chapterTitleRe = regexp.MustCompile(`(?i)^chapter\s+(\d+)\s*[:.\-–—]?\s*(.*)$`)

// ParseChapterPlan extracts chapters from the Planner's Markdown outline.
// Headings that read "Chapter N ..." delimit chapters; without them every
// level-2 heading does. Bullets under a chapter become its key topics and
// the first paragraph its summary. Outlines written as a single list of
// "Chapter N" items are understood too.
func ParseChapterPlan(md string) ([]storage.Chapter, error) {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))

	level := chapterHeadingLevel(doc, src)
	if level == 0 {
		return chaptersFromLists(doc, src), nil
	}

	var (
		out     []storage.Chapter
		current *storage.Chapter
	)
	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level == level {
				flush()
				c := newChapter(nodeText(node, src), len(out)+1)
				current = &c
			} else if node.Level < level {
				flush()
			}
		case *ast.List:
			if current != nil {
				current.KeyTopics = append(current.KeyTopics, listTopics(node, src)...)
			}
		case *ast.Paragraph:
			if current != nil && current.Summary == "" {
				current.Summary = nodeText(node, src)
			}
		}
	}
	flush()
	return out, nil
}

func chapterHeadingLevel(doc ast.Node, src []byte) int {
	level2 := false
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		if chapterTitleRe.MatchString(cleanTitle(nodeText(h, src))) {
			return h.Level
		}
		if h.Level == 2 {
			level2 = true
		}
	}
	if level2 {
		return 2
	}
	return 0
}

func chaptersFromLists(doc ast.Node, src []byte) []storage.Chapter {
	var out []storage.Chapter
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		list, ok := n.(*ast.List)
		if !ok {
			continue
		}
		for item := list.FirstChild(); item != nil; item = item.NextSibling() {
			title := cleanTitle(nodeText(item, src))
			if !chapterTitleRe.MatchString(title) {
				continue
			}
			c := newChapter(title, len(out)+1)
			for child := item.FirstChild(); child != nil; child = child.NextSibling() {
				if sub, ok := child.(*ast.List); ok {
					c.KeyTopics = append(c.KeyTopics, listTopics(sub, src)...)
				}
			}
			out = append(out, c)
		}
	}
	return out
}

func newChapter(heading string, fallback int) storage.Chapter {
	title := cleanTitle(heading)
	c := storage.Chapter{Number: fallback, Title: title, Status: storage.ChapterPlanned}
	if m := chapterTitleRe.FindStringSubmatch(title); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			c.Number = n
		}
		if rest := strings.TrimSpace(m[2]); rest != "" {
			c.Title = rest
		}
	}
	return c
}

// listTopics returns the text of every item of list, nested items included.
func listTopics(list ast.Node, src []byte) []string {
	var out []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		if t := cleanTitle(nodeText(item, src)); t != "" {
			out = append(out, t)
		}
		for child := item.FirstChild(); child != nil; child = child.NextSibling() {
			if sub, ok := child.(*ast.List); ok {
				out = append(out, listTopics(sub, src)...)
			}
		}
	}
	return out
}

// nodeText concatenates the inline text under n, skipping nested lists.
func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.List:
			if c != n {
				return ast.WalkSkipChildren, nil
			}
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func cleanTitle(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_#"))
}
