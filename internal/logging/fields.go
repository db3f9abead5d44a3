package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 提供缓存键、记录结构与命中状态字段，供协调器与 HTTP 层复用。
func CacheFields(key, kind string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"key":       key,
		"kind":      kind,
		"cache_hit": cacheHit,
	}
}

// RequestFields 描述一次 HTTP 请求，upstream 为空表示只访问本地缓存。
func RequestFields(method, path, requestID, upstream string, status int, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
		"upstream":   upstream,
		"status":     status,
		"cache_hit":  cacheHit,
	}
}
