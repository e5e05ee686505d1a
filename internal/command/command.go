package command

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"mediasniff/internal/headers"
	"mediasniff/pkg/model"
)

// aria2cTuning aria2c 命令行调优参数
var aria2cTuning = []string{
	"--max-connection-per-server=16",
	"--split=16",
	"--min-split-size=1M",
	"--continue=true",
	"--max-download-limit=0",
	"--timeout=60",
	"--retry-wait=3",
	"--max-tries=5",
}

var shellEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")

// quote 以双引号包裹并转义 shell 双引号上下文中的特殊字符
func quote(s string) string {
	return `"` + shellEscaper.Replace(s) + `"`
}

// DefaultOutputName 默认输出文件名 {id}_{type}_{itag}.mp4
func DefaultOutputName(rec *model.MediaRecord) string {
	kind := string(rec.Type)
	if kind == "" {
		kind = "media"
	}
	itag := rec.Itag
	if itag == "" {
		itag = "itag"
	}
	return fmt.Sprintf("%s_%s_%s.mp4", rec.ID, kind, itag)
}

// Aria2cCommand 生成可直接复制执行的 aria2c 命令行，记录为空时返回空串
func Aria2cCommand(rec *model.MediaRecord) string {
	if rec == nil {
		return ""
	}
	target := rec.PlaybackURL()
	if target == "" {
		return ""
	}
	parts := append([]string{"aria2c"}, aria2cTuning...)
	if ua, ok := rec.Header(headers.UserAgent); ok && ua != "" {
		parts = append(parts, "--user-agent "+quote(ua))
	}
	for _, h := range rec.RequestHeaders {
		if h.Name == headers.UserAgent {
			continue
		}
		parts = append(parts, "--header "+quote(h.Name+": "+h.Value))
	}
	parts = append(parts, "-o "+quote(DefaultOutputName(rec)), quote(target))
	return strings.Join(parts, " ")
}

// AddURIOptions 生成 aria2.addUri 的下载选项
func AddURIOptions(rec *model.MediaRecord, filename string) map[string]any {
	opts := map[string]any{
		"out":                        filename,
		"header":                     headers.Lines(rec.RequestHeaders),
		"max-connection-per-server":  "16",
		"max-concurrent-downloads":   "16",
		"split":                      "16",
		"min-split-size":             "1M",
		"max-split-size":             "0",
		"continue":                   "true",
		"timeout":                    "60",
		"retry-wait":                 "3",
		"max-tries":                  "5",
		"lowest-speed-limit":         "0",
		"max-download-limit":         "0",
		"max-overall-download-limit": "0",
		"file-allocation":            "none",
		"disk-cache":                 "32M",
		"enable-http-pipelining":     "true",
	}
	if ua, ok := rec.Header(headers.UserAgent); ok && ua != "" {
		opts["user-agent"] = ua
	}
	return opts
}

// ==================== 文件名 ====================

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

const maxTitleRunes = 50

// Extension 按流类型返回扩展名
func Extension(kind model.StreamKind) string {
	if kind == model.StreamVideo {
		return "mp4"
	}
	return "mp3"
}

// SuggestFilename 根据页面标题生成建议文件名，标题不可用时退回 lecture_{type}_{毫秒}
func SuggestFilename(kind model.StreamKind, title string, now time.Time) string {
	ms := now.UnixMilli()
	name := fmt.Sprintf("lecture_%s_%d", kind, ms)
	if clean := cleanTitle(title); clean != "" {
		label := "Audio"
		if kind == model.StreamVideo {
			label = "Video"
		}
		name = fmt.Sprintf("%s_%s_%d", clean, label, ms)
	}
	return name + "." + Extension(kind)
}

// FinalizeFilename 补全扩展名并替换非法字符；name 为空时使用默认命名
func FinalizeFilename(name string, kind model.StreamKind, now time.Time) string {
	if name == "" {
		name = fmt.Sprintf("lecture_%s_%d.%s", kind, now.UnixMilli(), Extension(kind))
	}
	if !strings.Contains(name, ".") {
		name = name + "." + Extension(kind)
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

func cleanTitle(title string) string {
	t := unsafeChars.ReplaceAllString(title, "")
	t = whitespace.ReplaceAllString(t, "_")
	if r := []rune(t); len(r) > maxTitleRunes {
		t = string(r[:maxTitleRunes])
	}
	return t
}
