// Package license 根据配置的黑名单判断包的许可证是否受限。
//
// 黑名单中的每一项都是不区分大小写的正则表达式，在 New 时一次性编译，之后只读，
// 可被任意数量的请求并发使用。许可证信息来自两种互斥的声明：新版 nuspec 的
// <license type="expression"> 与旧版的 <licenseUrl>。清单无法解析时一律视为未受限。
package license
