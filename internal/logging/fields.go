package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// WorkerFields 标识一次 worker 生命周期事件（install/activate/claim）。
func WorkerFields(action, workerID, version, cacheName string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"worker_id":  workerID,
		"version":    version,
		"cache_name": cacheName,
	}
}

// RequestFields 提供版本/路由/来源字段，供拦截请求日志复用。
func RequestFields(version, route, method, path, source string) logrus.Fields {
	return logrus.Fields{
		"version": version,
		"route":   route,
		"method":  method,
		"path":    path,
		"source":  source,
	}
}
