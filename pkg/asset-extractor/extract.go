package assetextractor

import (
	"bytes"
	"net/url"
	"strings"

	resourceclass "github.com/always-cache/stepper-cache/pkg/resource-class"

	"golang.org/x/net/html"
)

// assetAttributes maps the elements that reference static assets
// to the attribute holding the reference.
var assetAttributes = map[string]string{
	"link":   "href",
	"script": "src",
	"img":    "src",
}

// Extract returns the absolute URLs of the static assets referenced by the given HTML document.
// References are taken from `<link href>`, `<script src>` and `<img src>` and kept only if
// they look like static resources. Relative references are resolved against origin
// (scheme and host of the document). The result contains no duplicates and keeps the
// order in which references first appear.
//
// Extraction is best effort: markup that cannot be tokenized is skipped silently.
func Extract(body []byte, origin *url.URL) []string {
	base := &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"}
	seen := make(map[string]struct{})
	urls := make([]string, 0)

	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a tokenizer error, both end the scan
			return urls
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		attr, ok := assetAttributes[string(name)]
		if !ok || !hasAttr {
			continue
		}
		ref := attributeValue(z, attr)
		if ref == "" || !resourceclass.IsStatic(ref) {
			continue
		}
		refURL, err := url.Parse(ref)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(refURL).String()
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		urls = append(urls, abs)
	}
}

// attributeValue returns the value of the named attribute of the current tag.
func attributeValue(z *html.Tokenizer, name string) string {
	for {
		key, val, more := z.TagAttr()
		if string(key) == name {
			return strings.TrimSpace(string(val))
		}
		if !more {
			return ""
		}
	}
}
