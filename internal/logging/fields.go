package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// PackageFields 提供包 ID/版本字段，供镜像、许可证检查与请求日志复用。
func PackageFields(id, version string) logrus.Fields {
	return logrus.Fields{
		"package_id":      id,
		"package_version": version,
	}
}

// RequestFields 在包字段基础上追加请求 ID 与路由操作名。
func RequestFields(requestID, operation, id, version string) logrus.Fields {
	fields := PackageFields(id, version)
	fields["operation"] = operation
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}
