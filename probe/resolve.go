package probe

import (
	"bytes"
	"net/url"

	"golang.org/x/net/html"
)

// extractMediaURL finds the media URL on an intermediate post page: Open
// Graph / Twitter card metadata first, then the first plain <img src>.
// Relative references are resolved against the page URL. Returns "" when the
// page carries no media, which the caller treats as a miss.
func extractMediaURL(body []byte, page *url.URL) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var meta, img string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if meta != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var key, content string
				for _, a := range n.Attr {
					switch a.Key {
					case "property", "name":
						key = a.Val
					case "content":
						content = a.Val
					}
				}
				switch key {
				case "og:image", "og:image:secure_url", "og:video", "twitter:image":
					if content != "" {
						meta = content
						return
					}
				}
			case "img":
				if img == "" {
					for _, a := range n.Attr {
						if a.Key == "src" && a.Val != "" {
							img = a.Val
							break
						}
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	found := meta
	if found == "" {
		found = img
	}
	if found == "" {
		return ""
	}

	ref, err := url.Parse(found)
	if err != nil {
		return ""
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
