// Package version 提供 anthropic-kit 的版本信息。
// 支持通过 -ldflags 在构建时注入版本信息，例如：
//
//	go build -ldflags "-X github.com/lgc202/anthropic-kit/version.gitVersion=v0.3.0"
//
// 同时记录 SDK 默认使用的后端协议版本，并生成 HTTP User-Agent。
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"

	"github.com/gosuri/uitable"
)

const (
	// AnthropicAPIVersion 是直连后端的 anthropic-version 请求头
	AnthropicAPIVersion = "2023-06-01"
	// VertexAPIVersion 是 Vertex AI 请求体中的 anthropic_version 字段
	VertexAPIVersion = "vertex-2023-10-16"

	product = "anthropic-kit"
)

var (
	// gitVersion 是语义化的版本号，格式为 vMAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]
	gitVersion = "v0.0.0-master+$Format:%h$"
	// buildDate 是 ISO8601 格式的构建时间, $(date -u +'%Y-%m-%dT%H:%M:%SZ') 命令的输出
	buildDate = "1970-01-01T00:00:00Z"
	// gitCommit 是 Git 的 SHA1 值，$(git rev-parse HEAD) 命令的输出
	gitCommit = "$Format:%H$"
	// gitTreeState 代表构建时 Git 仓库的状态，值为 clean 或 dirty
	gitTreeState = ""
)

// Info 包含了版本信息
type Info struct {
	GitVersion       string `json:"gitVersion"`
	GitCommit        string `json:"gitCommit"`
	GitTreeState     string `json:"gitTreeState,omitempty"`
	BuildDate        string `json:"buildDate"`
	APIVersion       string `json:"apiVersion"`
	VertexAPIVersion string `json:"vertexApiVersion"`
	GoVersion        string `json:"goVersion"`
	Platform         string `json:"platform"`
}

// String 返回人性化的版本信息字符串
func (info Info) String() string {
	if info.GitTreeState == "dirty" {
		return info.GitVersion + "-dirty"
	}
	return info.GitVersion
}

// ShortString 返回简短的版本字符串，仅包含版本号
func (info Info) ShortString() string {
	return info.GitVersion
}

// ToJSON 以 JSON 格式返回版本信息
func (info Info) ToJSON() (string, error) {
	s, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to marshal version info: %w", err)
	}
	return string(s), nil
}

// Text 以对齐的表格文本返回版本信息
func (info Info) Text() string {
	table := uitable.New()
	table.RightAlign(0)
	table.MaxColWidth = 80
	table.Separator = " "
	table.AddRow("gitVersion:", info.GitVersion)
	table.AddRow("gitCommit:", info.GitCommit)
	if info.GitTreeState != "" {
		table.AddRow("gitTreeState:", info.GitTreeState)
	}
	table.AddRow("buildDate:", info.BuildDate)
	table.AddRow("apiVersion:", info.APIVersion)
	table.AddRow("vertexApiVersion:", info.VertexAPIVersion)
	table.AddRow("goVersion:", info.GoVersion)
	table.AddRow("platform:", info.Platform)

	return table.String()
}

// UserAgent 返回 HTTP 请求默认使用的 User-Agent，例如
// "anthropic-kit/v0.3.0 (go1.24.0; linux/amd64)"
func (info Info) UserAgent() string {
	v := strings.TrimSpace(info.GitVersion)
	if v == "" {
		v = "unknown"
	}
	return fmt.Sprintf("%s/%s (%s; %s)", product, v, info.GoVersion, info.Platform)
}

// Get 返回当前二进制的版本信息
func Get() Info {
	return Info{
		GitVersion:       gitVersion,
		GitCommit:        gitCommit,
		GitTreeState:     gitTreeState,
		BuildDate:        buildDate,
		APIVersion:       AnthropicAPIVersion,
		VertexAPIVersion: VertexAPIVersion,
		GoVersion:        runtime.Version(),
		Platform:         fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// UserAgent 是 Get().UserAgent() 的简写
func UserAgent() string {
	return Get().UserAgent()
}
