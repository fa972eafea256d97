package license

import (
	"errors"
	"fmt"
)

// RestrictedLicenseError 表示包因许可证命中黑名单而被拒绝提供。
// API 层据此返回 403，与 404 区分。
type RestrictedLicenseError struct {
	PackageID      string
	PackageVersion string
	LicenseInfo    string
}

// NewRestrictedLicenseError 构造受限错误。
func NewRestrictedLicenseError(id, version, licenseInfo string) *RestrictedLicenseError {
	return &RestrictedLicenseError{
		PackageID:      id,
		PackageVersion: version,
		LicenseInfo:    licenseInfo,
	}
}

func (e *RestrictedLicenseError) Error() string {
	if e.LicenseInfo == "" {
		return fmt.Sprintf("package %s %s has a restricted license", e.PackageID, e.PackageVersion)
	}
	return fmt.Sprintf("package %s %s has a restricted license: %s", e.PackageID, e.PackageVersion, e.LicenseInfo)
}

// IsRestrictedLicense 报告 err 链中是否包含 RestrictedLicenseError。
func IsRestrictedLicense(err error) bool {
	var target *RestrictedLicenseError
	return errors.As(err, &target)
}
