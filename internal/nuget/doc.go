// Package nuget 定义 NuGet 包的共享数据模型：版本号、包身份、索引记录以及 nuspec 清单解析。
// license、content、mirror、index、storage 等包都只依赖这里的类型，避免彼此耦合。
package nuget
