package assetextractor

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, s string) *url.URL {
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestExtractCommonCases(t *testing.T) {
	doc := `<!doctype html>
<html>
<head>
	<link rel="stylesheet" href="a.css">
	<script src="b.js"></script>
</head>
<body>
	<img src="c.png">
	<a href="d.html">link</a>
</body>
</html>`

	urls := Extract([]byte(doc), mustParse(t, "https://forum.example.com/d/1-hello"))

	assert.Equal(t, []string{
		"https://forum.example.com/a.css",
		"https://forum.example.com/b.js",
		"https://forum.example.com/c.png",
	}, urls)
}

func TestExtractDeduplicatesAndKeepsAbsolute(t *testing.T) {
	doc := `<link href="/assets/forum.css"><link href='/assets/forum.css'>
<script src="https://cdn.example.net/lib.js"></script>
<img src="/assets/forum.css" />`

	urls := Extract([]byte(doc), mustParse(t, "http://localhost:8080/"))

	assert.Equal(t, []string{
		"http://localhost:8080/assets/forum.css",
		"https://cdn.example.net/lib.js",
	}, urls)
}

func TestExtractSkipsNonStatic(t *testing.T) {
	doc := `<link rel="manifest" href="/manifest.webmanifest">
<link rel="canonical" href="https://forum.example.com/">
<script>console.log("inline")</script>
<script src="/api/config"></script>
<img src="/avatar.png?size=64">`

	assert.Empty(t, Extract([]byte(doc), mustParse(t, "https://forum.example.com/")))
}

func TestExtractMalformedIsEmpty(t *testing.T) {
	assert.Empty(t, Extract([]byte(`<<<>>> not html at all <script`), mustParse(t, "https://forum.example.com/")))
	assert.Empty(t, Extract(nil, mustParse(t, "https://forum.example.com/")))
}
