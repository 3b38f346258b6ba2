package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Storage 管理全部 NamedCache，对应浏览器侧的 CacheStorage。
type Storage interface {
	// Open 返回指定名称的缓存，不存在时创建空缓存。
	Open(ctx context.Context, name string) (NamedCache, error)

	// Has 判断缓存是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Delete 整体删除缓存，返回删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Names 按字典序返回所有缓存名。
	Names(ctx context.Context) ([]string, error)

	// Replace 以 entries 原子地创建（或整体替换）一个缓存：要么全部条目可见，
	// 要么调用失败且磁盘状态保持不变。
	Replace(ctx context.Context, name string, entries []Entry) (NamedCache, error)
}

// NamedCache 是单个版本化缓存的读写视图。
type NamedCache interface {
	Name() string

	// Match 返回 key 对应的响应副本，不存在时返回 ErrNotFound。
	Match(ctx context.Context, key Key) (*Response, error)

	// Put 整体覆盖 key 对应的条目。非 GET 的 key 返回 ErrNotCacheable。
	Put(ctx context.Context, key Key, resp *Response) error

	// Delete 删除单个条目，条目不存在时不报错。
	Delete(ctx context.Context, key Key) error

	// Keys 返回缓存中的全部 key，顺序不保证。
	Keys(ctx context.Context) ([]Key, error)
}

// Entry 是 Replace 时写入的一条 key/response。
type Entry struct {
	Key      Key
	Response *Response
}

// Key 是规范化后的请求键：方法固定大写，同源 URL 保存为相对路径（/static/a.css?v=1），
// 跨源 URL 保存为绝对地址，片段一律丢弃。
type Key struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewKey 以 origin 为基准规范化 target。origin 为 nil 时保留绝对地址。
func NewKey(method string, target *url.URL, origin *url.URL) Key {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if target == nil {
		return Key{Method: method, URL: "/"}
	}

	u := *target
	u.Fragment = ""
	u.RawFragment = ""
	if origin != nil && sameOrigin(&u, origin) {
		rel := u.EscapedPath()
		if rel == "" {
			rel = "/"
		}
		if u.RawQuery != "" {
			rel += "?" + u.RawQuery
		}
		return Key{Method: method, URL: rel}
	}
	if !u.IsAbs() {
		rel := u.String()
		if !strings.HasPrefix(rel, "/") {
			rel = "/" + rel
		}
		return Key{Method: method, URL: rel}
	}
	return Key{Method: method, URL: u.String()}
}

// GetKey 是 NewKey(GET, ...) 的简写，预缓存与回退查找使用。
func GetKey(path string) Key {
	if path == "" {
		path = "/"
	}
	return Key{Method: http.MethodGet, URL: path}
}

func (k Key) String() string {
	return k.Method + " " + k.URL
}

// Cacheable 报告该 key 是否允许写入缓存，只有 GET 可以。
func (k Key) Cacheable() bool {
	return k.Method == http.MethodGet
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

var (
	// ErrNotFound 表示缓存条目或缓存本身不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrNotCacheable 表示 key 不允许写入缓存（非 GET）。
	ErrNotCacheable = errors.New("request is not cacheable")
	// ErrInvalidName 表示缓存名包含路径分隔符或以 . 开头。
	ErrInvalidName = errors.New("invalid cache name")
	// ErrCacheDeleted 表示写入时缓存已被整体删除，本次写入被丢弃。
	ErrCacheDeleted = errors.New("cache has been deleted")
	// ErrCorruptEntry 表示条目无法解码或摘要校验失败。
	ErrCorruptEntry = errors.New("cache entry corrupt")
)
