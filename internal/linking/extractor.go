package linking

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractExistingLinks scans a body for anchor markup pointing at known
// corpus slugs. bySlug maps slug -> article id. Each target is reported
// once, with the anchor text of its first occurrence.
func ExtractExistingLinks(body string, bySlug map[string]string) []ExistingLink {
	if body == "" || len(bySlug) == 0 || !strings.Contains(body, "<a") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var links []ExistingLink
	seen := make(map[string]bool)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		slug := slugFromHref(href)
		if slug == "" {
			return
		}

		targetID, ok := bySlug[slug]
		if !ok || seen[targetID] {
			return
		}
		seen[targetID] = true

		links = append(links, ExistingLink{
			TargetID:   targetID,
			AnchorText: normalizeSpace(s.Text()),
		})
	})

	return links
}

// slugFromHref returns the last path segment of an internal href. Absolute
// URLs to other hosts are still considered: whether a link is internal is
// decided by slug membership in the corpus, not by the host.
func slugFromHref(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
		return ""
	}

	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimRight(href, "/")

	if i := strings.LastIndex(href, "/"); i >= 0 {
		href = href[i+1:]
	}
	return href
}
