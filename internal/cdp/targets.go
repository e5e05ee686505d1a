package cdp

import (
	"strings"

	"github.com/mafredri/cdp/devtool"

	"mediasniff/pkg/model"
)

var internalSchemes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"devtools://",
	"edge://",
	"about:",
}

// isUserPageURL 判断是否为用户打开的普通页面
func isUserPageURL(u string) bool {
	if u == "" {
		return false
	}
	l := strings.ToLower(u)
	for _, p := range internalSchemes {
		if strings.HasPrefix(l, p) {
			return false
		}
	}
	return true
}

// userPages 过滤出用户页面目标，按 ID 去重
func userPages(targets []*devtool.Target) map[model.TabID]*devtool.Target {
	ids := make(map[model.TabID]*devtool.Target)
	for i := range targets {
		t := targets[i]
		if t == nil || t.Type != devtool.Page || !isUserPageURL(t.URL) {
			continue
		}
		if t.ID == "" {
			continue
		}
		ids[model.TabID(t.ID)] = t
	}
	return ids
}

// selectActivePage 选择最近的用户页面；/json/list 按最近激活排序，首个即最新
func selectActivePage(targets []*devtool.Target) *devtool.Target {
	for i := range targets {
		t := targets[i]
		if t == nil || t.Type != devtool.Page {
			continue
		}
		if isUserPageURL(t.URL) {
			return t
		}
	}
	return nil
}
