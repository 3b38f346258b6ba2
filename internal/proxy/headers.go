package proxy

import (
	"net/http"
	"net/textproto"
	"strings"
)

// hopByHopHeaders 是 RFC 7230 规定只在单跳有效的头部，转发时一律丢弃。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Proxy-Connection":    {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func isHopByHop(key string) bool {
	_, ok := hopByHopHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	return ok
}

// forwardHeaders 把 src 中可跨跳的头追加到 dst。
// Connection 头里点名的字段同样视为 hop-by-hop。
func forwardHeaders(dst, src http.Header) {
	named := connectionTokens(src)
	for key, values := range src {
		canonical := textproto.CanonicalMIMEHeaderKey(key)
		if isHopByHop(canonical) {
			continue
		}
		if _, ok := named[canonical]; ok {
			continue
		}
		for _, value := range values {
			dst.Add(canonical, value)
		}
	}
}

func connectionTokens(h http.Header) map[string]struct{} {
	values := h.Values("Connection")
	if len(values) == 0 {
		return nil
	}
	tokens := make(map[string]struct{})
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if token = strings.TrimSpace(token); token != "" {
				tokens[textproto.CanonicalMIMEHeaderKey(token)] = struct{}{}
			}
		}
	}
	return tokens
}
