package routes

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/nuget-hub/internal/license"
	"github.com/any-hub/nuget-hub/internal/logging"
	"github.com/any-hub/nuget-hub/internal/nuget"
	"github.com/any-hub/nuget-hub/internal/server"
)

// ContentService 是包内容读取的编排层，由 content.Service 实现。
type ContentService interface {
	GetPackageVersions(ctx context.Context, id string) ([]string, bool, error)
	GetPackageContentStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
	GetPackageManifestStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
	GetPackageReadmeStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
	GetPackageIconStream(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)
}

const (
	contentTypeNupkg    = "application/octet-stream"
	contentTypeNuspec   = "text/xml"
	contentTypeMarkdown = "text/markdown"
	contentTypeIcon     = "image/xyz"
)

type streamFunc func(ctx context.Context, id string, version nuget.Version) (io.ReadCloser, bool, error)

// RegisterPackageRoutes 挂载 flat-container 风格的包内容接口。
func RegisterPackageRoutes(svc ContentService, logger *logrus.Logger) server.RouteRegistrar {
	return func(app *fiber.App) {
		if app == nil || svc == nil || logger == nil {
			return
		}
		h := &packageHandler{svc: svc, logger: logger}
		app.Get("/v3/package/:id/index.json", h.versions)
		app.Get("/v3/package/:id/:version/:file", h.file)
	}
}

type packageHandler struct {
	svc    ContentService
	logger *logrus.Logger
}

func (h *packageHandler) versions(c fiber.Ctx) error {
	id := c.Params("id")
	versions, found, err := h.svc.GetPackageVersions(requestContext(c), id)
	if err != nil {
		return h.renderError(c, "versions", id, "", err)
	}
	if !found {
		return renderNotFound(c)
	}
	return c.JSON(fiber.Map{"versions": versions})
}

func (h *packageHandler) file(c fiber.Ctx) error {
	id := c.Params("id")
	rawVersion := c.Params("version")
	file := strings.ToLower(c.Params("file"))

	var (
		operation   string
		open        streamFunc
		contentType string
	)
	switch {
	case file == "readme":
		operation, open, contentType = "readme", h.svc.GetPackageReadmeStream, contentTypeMarkdown
	case file == "icon":
		operation, open, contentType = "icon", h.svc.GetPackageIconStream, contentTypeIcon
	case strings.HasSuffix(file, ".nupkg"):
		operation, open, contentType = "content", h.svc.GetPackageContentStream, contentTypeNupkg
	case strings.HasSuffix(file, ".nuspec"):
		operation, open, contentType = "manifest", h.svc.GetPackageManifestStream, contentTypeNuspec
	default:
		return renderNotFound(c)
	}

	version, err := nuget.ParseVersion(rawVersion)
	if err != nil {
		return renderNotFound(c)
	}

	stream, found, err := open(requestContext(c), id, version)
	if err != nil {
		return h.renderError(c, operation, id, rawVersion, err)
	}
	if !found || stream == nil {
		return renderNotFound(c)
	}

	c.Set(fiber.HeaderContentType, contentType)
	return c.SendStream(stream)
}

// renderError 将受限许可证映射为 403，其余错误记录日志后返回 500。
func (h *packageHandler) renderError(c fiber.Ctx, operation, id, version string, err error) error {
	var restricted *license.RestrictedLicenseError
	if errors.As(err, &restricted) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":           "license_restricted",
			"package_id":      restricted.PackageID,
			"package_version": restricted.PackageVersion,
			"license":         restricted.LicenseInfo,
		})
	}

	fields := logging.RequestFields(server.RequestID(c), operation, id, version)
	fields["action"] = "serve_package"
	h.logger.WithFields(fields).WithError(err).Error("package_request_failed")

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal_error",
	})
}

func renderNotFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "not_found",
	})
}

func requestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
