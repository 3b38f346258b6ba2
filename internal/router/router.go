// Package router classifies intercepted requests into the route that decides
// how they are served: passed through untouched, network-first, or one of the
// cache strategies for same-origin static assets.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Route 是一次请求的处理方式。
type Route string

const (
	PassThrough          Route = "pass-through"
	NetworkFirst         Route = "network-first"
	CacheFirst           Route = "cache-first"
	StaleWhileRevalidate Route = "stale-while-revalidate"
)

// Intercepted 报告该路由是否由缓存层接管。
func (r Route) Intercepted() bool {
	return r != PassThrough && r != ""
}

// ParseSameOriginRoute 把配置值映射为同源静态资源路由，仅接受两种缓存策略。
func ParseSameOriginRoute(raw string) (Route, error) {
	switch Route(strings.ToLower(strings.TrimSpace(raw))) {
	case CacheFirst, "":
		return CacheFirst, nil
	case StaleWhileRevalidate:
		return StaleWhileRevalidate, nil
	default:
		return "", fmt.Errorf("unsupported same-origin strategy: %s", raw)
	}
}

// BypassRuleSet 是一组路径前缀，命中即完全绕过缓存。
type BypassRuleSet []string

// Matches 对请求路径做前缀匹配。
func (b BypassRuleSet) Matches(path string) bool {
	for _, prefix := range b {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RequestDescriptor 描述一次被拦截的请求，构造后不再修改。
type RequestDescriptor struct {
	Method     string
	URL        *url.URL
	Navigation bool
	Accept     string
	// Header 是客户端可透传给网络的请求头（已去掉 hop-by-hop）。
	Header http.Header
}

// NewRequestDescriptor 复制入参构造描述符；Navigation 依据浏览器发送的
// Sec-Fetch-Mode/Sec-Fetch-Dest 推断。
func NewRequestDescriptor(method string, target *url.URL, header http.Header) *RequestDescriptor {
	u := *target
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	return &RequestDescriptor{
		Method:     strings.ToUpper(method),
		URL:        &u,
		Navigation: isNavigation(h),
		Accept:     h.Get("Accept"),
		Header:     h,
	}
}

// Path 返回请求路径，空路径视为 /。
func (r *RequestDescriptor) Path() string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

func isNavigation(h http.Header) bool {
	if strings.EqualFold(h.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	return strings.EqualFold(h.Get("Sec-Fetch-Dest"), "document")
}

// Router 按固定顺序对请求分类，第一条命中的规则生效。
type Router struct {
	origin     *url.URL
	bypass     BypassRuleSet
	sameOrigin Route
}

// New 构造 Router；sameOrigin 只能是 CacheFirst 或 StaleWhileRevalidate。
func New(origin *url.URL, bypass []string, sameOrigin Route) (*Router, error) {
	if origin == nil || origin.Host == "" {
		return nil, errors.New("origin is required")
	}
	if sameOrigin != CacheFirst && sameOrigin != StaleWhileRevalidate {
		return nil, fmt.Errorf("invalid same-origin route: %s", sameOrigin)
	}
	o := *origin
	return &Router{
		origin:     &o,
		bypass:     append(BypassRuleSet(nil), bypass...),
		sameOrigin: sameOrigin,
	}, nil
}

// Origin 返回 Router 视为同源的地址副本。
func (r *Router) Origin() *url.URL {
	o := *r.origin
	return &o
}

// Bypass 返回绕过前缀集合。
func (r *Router) Bypass() BypassRuleSet {
	return r.bypass
}

// SameOriginRoute 返回同源静态资源采用的路由。
func (r *Router) SameOriginRoute() Route {
	return r.sameOrigin
}

// Classify 决定请求的路由：
//  1. 非 GET → PassThrough
//  2. 命中绕过前缀 → PassThrough
//  3. 导航或 Accept 含 text/html → NetworkFirst
//  4. 同源 → CacheFirst / StaleWhileRevalidate
//  5. 其它 → PassThrough
func (r *Router) Classify(req *RequestDescriptor) Route {
	if req == nil || req.Method != http.MethodGet {
		return PassThrough
	}
	if r.bypass.Matches(req.Path()) {
		return PassThrough
	}
	if req.Navigation || strings.Contains(req.Accept, "text/html") {
		return NetworkFirst
	}
	if r.IsSameOrigin(req.URL) {
		return r.sameOrigin
	}
	return PassThrough
}

// IsSameOrigin 比较 scheme 与 host（含端口）。
func (r *Router) IsSameOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, r.origin.Scheme) && strings.EqualFold(u.Host, r.origin.Host)
}
