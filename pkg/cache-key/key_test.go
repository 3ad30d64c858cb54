package cachekey

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
)

func TestRequestFromKey(t *testing.T) {
	keygen := NewCacheKeyer(nil)
	r, _ := http.NewRequest("GET", "http://dev.localhost/page?sort=new#reply", nil)
	key := keygen.GetKey(r)
	if key != "http://dev.localhost/page?sort=new" {
		t.Fatalf("Key is %s", key)
	}
	req, err := keygen.GetRequestFromKey(key)
	if err != nil {
		t.Fatalf("%s: %s", key, err)
	}
	if url := req.URL.String(); url != "http://dev.localhost/page?sort=new" {
		t.Fatalf("Created request url for key %s is %s", key, url)
	}
	if req.Method != "GET" {
		t.Fatalf("Created request method is %s", req.Method)
	}
}

func TestKeyIsMethodAgnostic(t *testing.T) {
	keygen := NewCacheKeyer(nil)
	get, _ := http.NewRequest("GET", "http://dev.localhost/page", nil)
	head, _ := http.NewRequest("HEAD", "http://dev.localhost/page", nil)
	if keygen.GetKey(get) != keygen.GetKey(head) {
		t.Fatalf("Keys differ: %s %s", keygen.GetKey(get), keygen.GetKey(head))
	}
	if keygen.Cacheable(head) || !keygen.Cacheable(get) {
		t.Fatal("Only GET requests should be cacheable")
	}
}

func TestKeyUsesOriginForRelativeRequests(t *testing.T) {
	origin, _ := url.Parse("https://forum.example.com")
	keygen := NewCacheKeyer(origin)
	r, _ := http.NewRequest("GET", "/assets/forum.js", nil)
	if key := keygen.GetKey(r); key != "https://forum.example.com/assets/forum.js" {
		t.Fatalf("Key is %s", key)
	}
}

func TestMalformedKey(t *testing.T) {
	_, err := NewCacheKeyer(nil).GetRequestFromKey("/relative/only")
	if !errors.Is(err, ErrorMalformedKey) {
		t.Fatalf("Error is %v", err)
	}
}
