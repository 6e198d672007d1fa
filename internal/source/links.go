package source

import (
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	xhtml "golang.org/x/net/html"

	"scrub/urlnorm"
)

// FeedLinks collects the item links of a parsed feed, resolved against
// the feed URL. Items without a usable link are skipped.
func FeedLinks(feed *gofeed.Feed, base urlnorm.URL) []string {
	if feed == nil {
		return nil
	}
	var links []string
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		if link == "" {
			continue
		}
		resolved, err := base.Relative(link)
		if err != nil {
			continue
		}
		links = append(links, resolved.String())
	}
	return links
}

// PageLinks walks an HTML document and collects every <a href>,
// resolved against the page URL. Fragments-only, javascript:, and
// mailto: references are skipped.
func PageLinks(r io.Reader, base urlnorm.URL) ([]string, error) {
	doc, err := xhtml.Parse(r)
	if err != nil {
		return nil, err
	}
	var links []string
	walk(doc, func(href string) {
		href = strings.TrimSpace(href)
		if !usableHref(href) {
			return
		}
		resolved, err := base.Relative(href)
		if err != nil || !resolved.IsAbsolute() {
			return
		}
		links = append(links, resolved.String())
	})
	return links, nil
}

func walk(n *xhtml.Node, visit func(href string)) {
	if n == nil {
		return
	}
	if n.Type == xhtml.ElementNode && strings.EqualFold(n.Data, "a") {
		for _, attr := range n.Attr {
			if strings.EqualFold(attr.Key, "href") {
				visit(attr.Val)
				break
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func usableHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") &&
		!strings.HasPrefix(lower, "mailto:") &&
		!strings.HasPrefix(lower, "tel:") &&
		!strings.HasPrefix(lower, "data:")
}
