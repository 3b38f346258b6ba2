package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/any-hub/offline-hub/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestNewUpstreamClientDefaults(t *testing.T) {
	client := NewUpstreamClient(nil)
	if client.Timeout != defaultUpstreamTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultUpstreamTimeout, client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.MaxIdleConnsPerHost != minIdlePerHost {
		t.Fatalf("expected %d idle conns per host, got %d", minIdlePerHost, transport.MaxIdleConnsPerHost)
	}
}

func TestNewUpstreamClientSizesIdlePoolForInstall(t *testing.T) {
	cfg := &config.Config{Worker: config.WorkerConfig{InstallConcurrency: 64}}

	transport := NewUpstreamClient(cfg).Transport.(*http.Transport)
	if transport.MaxIdleConnsPerHost != 64 {
		t.Fatalf("idle pool should match install fan-out, got %d", transport.MaxIdleConnsPerHost)
	}
	if transport.MaxIdleConns < transport.MaxIdleConnsPerHost {
		t.Fatalf("global idle pool smaller than per-host pool: %d", transport.MaxIdleConns)
	}
}

func TestNewUpstreamClientDoesNotShareTransport(t *testing.T) {
	a := NewUpstreamClient(nil)
	b := NewUpstreamClient(nil)
	if a.Transport == b.Transport {
		t.Fatalf("each client should own its transport")
	}
}
