package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/offline-hub/internal/strategy"
	"github.com/any-hub/offline-hub/internal/worker"
)

// Reloader 重新读取部署配置，返回新 worker 的构造参数。
type Reloader func(ctx context.Context) (worker.Options, error)

// RegisterWorkerRoutes 暴露 /-/worker 与 /-/caches 诊断接口。
// reload 为 nil 时不注册 /-/worker/update。
func RegisterWorkerRoutes(app *fiber.App, host *worker.Host, reload Reloader) {
	if app == nil || host == nil {
		return
	}

	app.Get("/-/worker", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"active":     encodeWorker(host.Active()),
			"waiting":    encodeWorker(host.Waiting()),
			"strategies": encodeStrategies(strategy.List()),
		})
	})

	app.Get("/-/caches", func(c fiber.Ctx) error {
		infos, err := host.Caches(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_list_failed"})
		}
		return c.JSON(fiber.Map{"caches": infos})
	})

	app.Post("/-/worker/activate", func(c fiber.Ctx) error {
		w, err := host.ActivateWaiting(c.Context())
		switch {
		case errors.Is(err, worker.ErrNoWaitingWorker):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no_waiting_worker"})
		case err != nil:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "activate_failed"})
		}
		return c.JSON(encodeWorker(w))
	})

	if reload == nil {
		return
	}
	app.Post("/-/worker/update", func(c fiber.Ctx) error {
		opts, err := reload(c.Context())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":  "config_invalid",
				"detail": err.Error(),
			})
		}
		w, err := host.Register(c.Context(), opts)
		if err != nil {
			var installErr *worker.InstallError
			if errors.As(err, &installErr) {
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"error":  "install_failed",
					"url":    installErr.URL,
					"status": installErr.Status,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":  "register_failed",
				"detail": err.Error(),
			})
		}
		return c.JSON(encodeWorker(w))
	})
}

type workerPayload struct {
	ID                 string `json:"id"`
	Version            string `json:"version"`
	CacheName          string `json:"cache_name"`
	State              string `json:"state"`
	SameOriginStrategy string `json:"same_origin_strategy"`
	ManifestSize       int    `json:"manifest_size"`
}

type strategyPayload struct {
	Route       string `json:"route"`
	Description string `json:"description"`
}

func encodeWorker(w *worker.Worker) *workerPayload {
	if w == nil {
		return nil
	}
	opts := w.Options()
	return &workerPayload{
		ID:                 w.ID(),
		Version:            w.Version(),
		CacheName:          w.CacheName(),
		State:              string(w.State()),
		SameOriginStrategy: string(opts.SameOriginRoute),
		ManifestSize:       len(opts.Manifest),
	}
}

func encodeStrategies(list []strategy.Metadata) []strategyPayload {
	result := make([]strategyPayload, 0, len(list))
	for _, meta := range list {
		result = append(result, strategyPayload{
			Route:       string(meta.Route),
			Description: meta.Description,
		})
	}
	return result
}
