package cdp

import (
	"mediasniff/pkg/model"
)

const defaultTrackerCap = 512

type trackedRequest struct {
	url    string
	method string
	media  bool
}

// requestTracker 关联 requestId 与地址；ExtraInfo 先到时暂存，容量有限，超出时丢弃最早的条目
type requestTracker struct {
	cap      int
	requests map[string]trackedRequest
	reqOrder []string
	parked   map[string][]model.HeaderEntry
	parkOrd  []string
}

func newRequestTracker(capacity int) *requestTracker {
	if capacity <= 0 {
		capacity = defaultTrackerCap
	}
	return &requestTracker{
		cap:      capacity,
		requests: make(map[string]trackedRequest),
		parked:   make(map[string][]model.HeaderEntry),
	}
}

// request 登记请求，媒体请求返回此前暂存的完整请求头；非媒体请求只用于丢弃其 ExtraInfo
func (t *requestTracker) request(id, url, method string, media bool) ([]model.HeaderEntry, bool) {
	if _, ok := t.requests[id]; !ok {
		t.reqOrder = append(t.reqOrder, id)
	}
	t.requests[id] = trackedRequest{url: url, method: method, media: media}
	for len(t.requests) > t.cap {
		oldest := t.reqOrder[0]
		t.reqOrder = t.reqOrder[1:]
		delete(t.requests, oldest)
	}

	hs, ok := t.parked[id]
	if ok {
		delete(t.parked, id)
		t.parkOrd = remove(t.parkOrd, id)
	}
	return hs, ok && media
}

// extra 处理 ExtraInfo；已登记的媒体请求返回对应请求，未登记时暂存
func (t *requestTracker) extra(id string, hs []model.HeaderEntry) (trackedRequest, bool) {
	if req, ok := t.requests[id]; ok {
		return req, req.media
	}
	if _, ok := t.parked[id]; !ok {
		t.parkOrd = append(t.parkOrd, id)
	}
	t.parked[id] = hs
	for len(t.parked) > t.cap {
		oldest := t.parkOrd[0]
		t.parkOrd = t.parkOrd[1:]
		delete(t.parked, oldest)
	}
	return trackedRequest{}, false
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
