// Package content 编排 NuGet flat container 的五个读取操作。
//
// 每个操作先触发读穿镜像，再做存在性/标记检查，最后把字节流交给存储层。
// 只有 .nupkg 内容流受许可证控制，并且许可证检查发生在下载计数之前，
// 被拦截的请求不会抬高下载统计。未找到统一以 found=false 表达，不走 error。
package content
