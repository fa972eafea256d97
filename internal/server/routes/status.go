package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/nuget-hub/internal/server"
)

// StatusInfo 汇总 /-/status 诊断接口展示的运行时信息。
type StatusInfo struct {
	Version              string `json:"version"`
	MirrorEnabled        bool   `json:"mirror_enabled"`
	Upstream             string `json:"upstream,omitempty"`
	LicenseFilterEnabled bool   `json:"license_filter_enabled"`
	BlockedPatterns      int    `json:"blocked_patterns"`
	Storage              string `json:"storage"`
	Database             string `json:"database"`
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供 SRE 确认镜像、许可证过滤与后端配置。
func RegisterStatusRoutes(info StatusInfo) server.RouteRegistrar {
	return func(app *fiber.App) {
		if app == nil {
			return
		}
		app.Get("/-/status", func(c fiber.Ctx) error {
			return c.JSON(info)
		})
	}
}
