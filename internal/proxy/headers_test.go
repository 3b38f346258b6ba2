package proxy

import (
	"net/http"
	"testing"
)

func TestForwardHeadersSkipsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("X-Test-Header", "1")
	src.Add("X-Test-Header", "2")

	dst := http.Header{}
	forwardHeaders(dst, src)

	if _, exists := dst["Connection"]; exists {
		t.Fatalf("connection header should not be copied")
	}
	if _, exists := dst["Keep-Alive"]; exists {
		t.Fatalf("keep-alive header should not be copied")
	}
	if got := dst.Values("X-Test-Header"); len(got) != 2 {
		t.Fatalf("expected 2 values, got %v", got)
	}
}

func TestForwardHeadersDropsConnectionNamedFields(t *testing.T) {
	src := http.Header{}
	src.Set("Connection", "close, X-Session-Hint")
	src.Set("X-Session-Hint", "abc")
	src.Set("Cache-Control", "max-age=60")

	dst := http.Header{}
	forwardHeaders(dst, src)

	if dst.Get("X-Session-Hint") != "" {
		t.Fatalf("field named by Connection must not be forwarded")
	}
	if dst.Get("Cache-Control") != "max-age=60" {
		t.Fatalf("end-to-end header lost: %v", dst)
	}
}

func TestIsHopByHopIsCaseInsensitive(t *testing.T) {
	for _, key := range []string{"transfer-encoding", "UPGRADE", "Proxy-Connection"} {
		if !isHopByHop(key) {
			t.Fatalf("expected %s to be hop-by-hop", key)
		}
	}
	if isHopByHop("Content-Type") {
		t.Fatalf("content-type must be forwarded")
	}
}
