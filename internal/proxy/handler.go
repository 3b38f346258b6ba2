package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/offline-hub/internal/logging"
	"github.com/any-hub/offline-hub/internal/router"
	"github.com/any-hub/offline-hub/internal/server"
	"github.com/any-hub/offline-hub/internal/strategy"
	"github.com/any-hub/offline-hub/internal/worker"
)

const (
	headerRoute  = "X-Offline-Hub-Route"
	headerSource = "X-Offline-Hub-Source"
)

// Dispatcher 是 Handler 依赖的宿主能力，worker.Host 实现它。
type Dispatcher interface {
	Dispatch(ctx context.Context, req *router.RequestDescriptor) worker.Outcome
}

// Handler 把每个 HTTP 请求转换为 fetch 事件交给宿主；宿主不接管的请求
// 走默认网络路径，原样流式透传。
type Handler struct {
	host    Dispatcher
	fetcher *NetworkFetcher
	origin  *url.URL
	logger  *logrus.Logger
}

// NewHandler constructs the interception handler.
func NewHandler(host Dispatcher, fetcher *NetworkFetcher, origin *url.URL, logger *logrus.Logger) *Handler {
	return &Handler{
		host:    host,
		fetcher: fetcher,
		origin:  origin,
		logger:  logger,
	}
}

// Handle 实现 server.ProxyHandler。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)

	req, err := h.describe(c)
	if err != nil {
		h.logResult(c, worker.Outcome{Route: router.PassThrough}, strategy.SourceError, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadRequest, "invalid_request")
	}

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := h.host.Dispatch(ctx, req)
	if out.Route == "" {
		out.Route = router.PassThrough
	}
	c.Set(headerRoute, string(out.Route))
	if !out.Handled {
		return h.passThrough(c, ctx, req, out, requestID, started)
	}
	return h.respond(c, out, requestID, started)
}

// describe 从 Fiber 请求构造 RequestDescriptor。Host 等于公开源站时沿用源站 scheme。
func (h *Handler) describe(c fiber.Ctx) (*router.RequestDescriptor, error) {
	uri := c.Request().URI()
	host := string(uri.Host())
	if host == "" {
		host = c.Hostname()
	}
	scheme := string(uri.Scheme())
	if scheme == "" {
		scheme = c.Protocol()
	}
	if h.origin != nil && strings.EqualFold(host, h.origin.Host) {
		scheme = h.origin.Scheme
	}
	target, err := url.Parse(scheme + "://" + host + string(uri.RequestURI()))
	if err != nil {
		return nil, err
	}
	return router.NewRequestDescriptor(c.Method(), target, fiberHeadersAsHTTP(c)), nil
}

func (h *Handler) respond(c fiber.Ctx, out worker.Outcome, requestID string, started time.Time) error {
	result := out.Result
	c.Set(headerSource, string(result.Source))
	if result.Response.IsError() {
		h.logResult(c, out, result.Source, requestID, 0, started, nil)
		return h.writeError(c, fiber.StatusBadGateway, "network_error")
	}

	resp := result.Response
	copyResponseHeaders(c, resp.Header)
	c.Status(resp.Status)
	h.logResult(c, out, result.Source, requestID, resp.Status, started, nil)
	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func (h *Handler) passThrough(c fiber.Ctx, ctx context.Context, req *router.RequestDescriptor, out worker.Outcome, requestID string, started time.Time) error {
	resp, err := h.fetcher.do(ctx, req, bytesReader(c.Body()))
	if err != nil {
		h.logResult(c, out, strategy.SourceError, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set(headerSource, string(strategy.SourceNetwork))
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		h.logResult(c, out, strategy.SourceNetwork, requestID, resp.StatusCode, started, nil)
		return nil
	}

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(c, out, strategy.SourceNetwork, requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	c fiber.Ctx,
	out worker.Outcome,
	source strategy.Source,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	if h.logger == nil {
		return
	}
	fields := logging.RequestFields(out.Version, string(out.Route), c.Method(), requestPath(c), string(source))
	fields["action"] = "fetch"
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("fetch_failed")
		return
	}
	h.logger.WithFields(fields).Info("fetch_complete")
}

func requestPath(c fiber.Ctx) string {
	if c == nil {
		return "/"
	}
	pathVal := string(c.Request().URI().Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if isHopByHop(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
