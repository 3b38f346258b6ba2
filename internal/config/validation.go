package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.ShutdownTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ShutdownTimeout", "必须大于 0")
	}

	return c.Worker.validate()
}

func (w *WorkerConfig) validate() error {
	if err := validateOrigin(w.Origin); err != nil {
		return fmt.Errorf("%s: %w", workerField("Origin"), err)
	}
	if err := validateUpstream(w.Upstream); err != nil {
		return fmt.Errorf("%s: %w", workerField("Upstream"), err)
	}
	if w.Version == "" {
		return newFieldError(workerField("Version"), "不能为空")
	}
	if strings.ContainsAny(w.Version, `/\`) {
		return newFieldError(workerField("Version"), "不允许包含路径分隔符")
	}
	if w.CachePrefix == "" || strings.ContainsAny(w.CachePrefix, `/\`) || strings.HasPrefix(w.CachePrefix, ".") {
		return newFieldError(workerField("CachePrefix"), "不能为空、以 . 开头或包含路径分隔符")
	}

	switch w.SameOriginStrategy {
	case StrategyCacheFirst, StrategyStaleWhileRevalidate:
	default:
		return newFieldError(workerField("SameOriginStrategy"), "仅支持 cache-first/stale-while-revalidate")
	}
	if w.InstallConcurrency <= 0 {
		return newFieldError(workerField("InstallConcurrency"), "必须大于 0")
	}

	for i, prefix := range w.BypassPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return newFieldError(workerField("BypassPrefixes", i), "必须以 / 开头")
		}
	}

	if len(w.Manifest) == 0 {
		return newFieldError(workerField("Manifest"), "至少需要一个预缓存地址")
	}
	seen := make(map[string]struct{}, len(w.Manifest))
	for i, entry := range w.Manifest {
		if entry == "" {
			return newFieldError(workerField("Manifest", i), "不能为空")
		}
		if _, exists := seen[entry]; exists {
			return newFieldError(workerField("Manifest", i), "重复")
		}
		seen[entry] = struct{}{}

		parsed, err := url.Parse(entry)
		if err != nil {
			return fmt.Errorf("%s: %w", workerField("Manifest", i), err)
		}
		if parsed.IsAbs() {
			continue
		}
		for _, prefix := range w.BypassPrefixes {
			if strings.HasPrefix(parsed.Path, prefix) {
				return newFieldError(workerField("Manifest", i), "不能位于绕过前缀 "+prefix+" 之下")
			}
		}
	}

	return nil
}

func validateOrigin(raw string) error {
	if err := validateUpstream(raw); err != nil {
		return err
	}
	parsed, _ := url.Parse(raw)
	if parsed.Path != "" && parsed.Path != "/" {
		return errors.New("Origin 不应包含路径")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return errors.New("Origin 不应包含查询或片段")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
