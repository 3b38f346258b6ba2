package cache

import (
	"net/http"
	"time"

	"github.com/opencontainers/go-digest"
)

// ResponseType 区分真实响应与显式的网络错误值。
type ResponseType string

const (
	ResponseBasic ResponseType = "basic"
	ResponseError ResponseType = "error"
)

// Response 是策略层之间传递的响应记录。网络失败不会抛出，而是以
// Type == ResponseError 的值返回给调用方。
type Response struct {
	Type   ResponseType
	Status int
	Header http.Header
	Body   []byte

	// StoredAt 是写入缓存的时间，作为新鲜度标记；未入缓存的响应为零值。
	StoredAt time.Time
	// Digest 是 Body 的摘要，写入时计算、读取时校验。
	Digest digest.Digest
}

// NetworkError 返回显式的网络错误响应。
func NetworkError() *Response {
	return &Response{Type: ResponseError, Header: http.Header{}}
}

// IsError 报告是否为网络错误值。
func (r *Response) IsError() bool {
	return r == nil || r.Type == ResponseError
}

// OK 仅在非错误响应且状态码为 2xx 时为真。
func (r *Response) OK() bool {
	return !r.IsError() && r.Status >= 200 && r.Status <= 299
}

// Clone 深拷贝响应，写缓存与返回调用方各持一份。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Header = r.Header.Clone()
	if cloned.Header == nil {
		cloned.Header = http.Header{}
	}
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return &cloned
}
