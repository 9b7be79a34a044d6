package analyzer

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// htmlParts splits a page into its inline script bodies and its comments.
// Scripts with a src attribute contribute nothing.
func htmlParts(page string) (scripts, comments []string) {
	z := html.NewTokenizer(strings.NewReader(page))
	inScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return scripts, comments
		case html.StartTagToken:
			t := z.Token()
			if t.DataAtom == atom.Script {
				inScript = !hasAttr(t, "src")
			}
		case html.EndTagToken:
			if t := z.Token(); t.DataAtom == atom.Script {
				inScript = false
			}
		case html.TextToken:
			if inScript {
				if text := z.Token().Data; strings.TrimSpace(text) != "" {
					scripts = append(scripts, text)
				}
			}
		case html.CommentToken:
			if text := z.Token().Data; strings.TrimSpace(text) != "" {
				comments = append(comments, text)
			}
		}
	}
}

func hasAttr(t html.Token, key string) bool {
	for _, a := range t.Attr {
		if a.Key == key && a.Val != "" {
			return true
		}
	}
	return false
}
