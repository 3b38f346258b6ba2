package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 同源静态资源可选的两种缓存策略。
const (
	StrategyCacheFirst           = "cache-first"
	StrategyStaleWhileRevalidate = "stale-while-revalidate"
)

// GlobalConfig 描述进程级行为：监听端口、日志、缓存目录与网络超时。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	ShutdownTimeout Duration `mapstructure:"ShutdownTimeout"`
}

// WorkerConfig 是部署期确定的拦截层配置：预缓存清单、绕过前缀与缓存版本。
// 版本号变化是让旧的预缓存资源失效的唯一手段。
type WorkerConfig struct {
	Origin             string   `mapstructure:"Origin"`
	Upstream           string   `mapstructure:"Upstream"`
	Version            string   `mapstructure:"Version"`
	CachePrefix        string   `mapstructure:"CachePrefix"`
	Manifest           []string `mapstructure:"Manifest"`
	BypassPrefixes     []string `mapstructure:"BypassPrefixes"`
	SameOriginStrategy string   `mapstructure:"SameOriginStrategy"`
	SkipWaiting        bool     `mapstructure:"SkipWaiting"`
	InstallConcurrency int      `mapstructure:"InstallConcurrency"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Worker WorkerConfig `mapstructure:"Worker"`
}

// CacheName 返回当前版本对应的缓存名，形如 static-v1。
func (w WorkerConfig) CacheName() string {
	return w.CachePrefix + w.Version
}

// OriginURL 解析公开源站地址；调用方应保证 Validate 已通过。
func (w WorkerConfig) OriginURL() (*url.URL, error) {
	return url.Parse(strings.TrimRight(w.Origin, "/"))
}

// UpstreamURL 解析应用真实地址；调用方应保证 Validate 已通过。
func (w WorkerConfig) UpstreamURL() (*url.URL, error) {
	return url.Parse(w.Upstream)
}
