package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasniff/internal/aria2"
	"mediasniff/internal/catalog"
	"mediasniff/internal/storage"
	"mediasniff/pkg/model"
)

const audioURL = "https://r1---sn-abc.googlevideo.com/videoplayback?id=A&itag=140&mime=audio%2Fmp4&range=0-100"

var fixedNow = time.UnixMilli(1700000000000)

type fakeHost struct {
	title      string
	downloadID string
	tab        model.TabID
	err        error

	gotURL      string
	gotFilename string
}

func (h *fakeHost) Download(_ context.Context, url, filename string) (string, error) {
	h.gotURL, h.gotFilename = url, filename
	return h.downloadID, h.err
}

func (h *fakeHost) OpenTab(_ context.Context, url string) (model.TabID, error) {
	h.gotURL = url
	return h.tab, h.err
}

func (h *fakeHost) ActiveTitle(context.Context) string { return h.title }

type fakeSettings struct {
	s   model.Aria2Settings
	err error
}

func (f fakeSettings) Aria2() (model.Aria2Settings, error) { return f.s, f.err }

type fakeAgent struct {
	result      any
	err         error
	gotFilename string
	gotRec      *model.MediaRecord
}

func (a *fakeAgent) AddURI(_ context.Context, _ model.Aria2Settings, rec *model.MediaRecord, filename string) (any, error) {
	a.gotRec, a.gotFilename = rec, filename
	return a.result, a.err
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Broadcast(ev model.ObserverEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, ev.Message)
}

type memHistory struct{ rows []storage.DeliveryRecord }

func (h *memHistory) Record(rec *storage.DeliveryRecord) error {
	h.rows = append(h.rows, *rec)
	return nil
}

type fixture struct {
	svc      *Service
	store    *catalog.Store
	host     *fakeHost
	agent    *fakeAgent
	notifier *recordingNotifier
	history  *memHistory
}

func newFixture(settings Settings) *fixture {
	f := &fixture{
		store:    catalog.New(catalog.WithClock(func() time.Time { return fixedNow })),
		host:     &fakeHost{downloadID: "guid-1", tab: "T9"},
		agent:    &fakeAgent{result: "gid-1"},
		notifier: &recordingNotifier{},
		history:  &memHistory{},
	}
	f.svc = New(Config{
		Catalog:  f.store,
		Host:     f.host,
		Settings: settings,
		Agent:    f.agent,
		Notifier: f.notifier,
		History:  f.history,
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

var audioRef = model.ItemRef{ID: "A", Type: model.StreamAudio, Itag: "140"}

func TestGetVideoURLs_AndClear(t *testing.T) {
	f := newFixture(nil)
	f.store.ObserveURL(audioURL, "T1")

	res := f.svc.GetVideoURLs("T1")
	require.Len(t, res.URLs, 1)
	assert.Equal(t, "A", res.URLs[0].ID)

	empty := f.svc.GetVideoURLs("T2")
	assert.NotNil(t, empty.URLs)
	assert.Empty(t, empty.URLs)

	assert.True(t, f.svc.ClearURLs().Success)
	assert.Empty(t, f.svc.GetVideoURLs("T1").URLs)
}

func TestDownloadVideo_SuggestsFilenameFromTitle(t *testing.T) {
	f := newFixture(nil)
	f.host.title = "Week 3: Intro"

	res := f.svc.DownloadVideo(context.Background(), model.DownloadRequest{URL: "https://v/x", Type: model.StreamVideo})

	assert.Equal(t, DownloadResult{Success: true, DownloadID: "guid-1"}, res)
	assert.Equal(t, "Week_3_Intro_Video_1700000000000.mp4", f.host.gotFilename)
	require.Len(t, f.history.rows, 1)
	assert.Equal(t, storage.DeliveryNative, f.history.rows[0].Action)
	assert.True(t, f.history.rows[0].Success)
}

func TestDownloadVideo_LegacyCustomFilename(t *testing.T) {
	f := newFixture(nil)

	f.svc.DownloadVideo(context.Background(), model.DownloadRequest{URL: "https://v/x", Type: model.StreamAudio, CustomFilename: "mine.m4a"})

	assert.Equal(t, "mine.m4a", f.host.gotFilename)
}

func TestDownloadVideo_HostFailureNotifies(t *testing.T) {
	f := newFixture(nil)
	f.host.err = errors.New("denied")

	res := f.svc.DownloadVideo(context.Background(), model.DownloadRequest{URL: "https://v/x", Type: model.StreamAudio})

	assert.False(t, res.Success)
	assert.Equal(t, "Download failed", res.Error)
	assert.Equal(t, []string{"Failed to start download. Please try again."}, f.notifier.msgs)
	assert.Equal(t, "denied", f.history.rows[0].Error)
}

func TestOpenVideoInNewTab(t *testing.T) {
	f := newFixture(nil)

	res := f.svc.OpenVideoInNewTab(context.Background(), "https://v/x")
	assert.Equal(t, TabResult{Success: true, TabID: "T9"}, res)

	bad := f.svc.OpenVideoInNewTab(context.Background(), "")
	assert.False(t, bad.Success)
	assert.Equal(t, []string{"Could not open video in new tab."}, f.notifier.msgs)
}

func TestSendToAria2_Success(t *testing.T) {
	f := newFixture(fakeSettings{s: model.Aria2Settings{URL: "http://rpc"}})
	f.store.ObserveURL(audioURL, "T1")

	res := f.svc.SendToAria2(context.Background(), model.Aria2Request{ItemRef: audioRef, Filename: "talk"})

	assert.Equal(t, Aria2Result{Success: true, Result: "gid-1"}, res)
	assert.Equal(t, "talk.mp3", f.agent.gotFilename)
	assert.Equal(t, "A", f.agent.gotRec.ID)
	assert.Equal(t, []string{"Sent to aria2. Download started."}, f.notifier.msgs)
	assert.Equal(t, "A_audio_140", f.history.rows[0].ItemKey)
	assert.Equal(t, "gid-1", f.history.rows[0].Result)
}

func TestSendToAria2_DefaultFilenameWithoutTitle(t *testing.T) {
	f := newFixture(fakeSettings{s: model.Aria2Settings{URL: "http://rpc"}})
	f.store.ObserveURL(audioURL, "T1")

	f.svc.SendToAria2(context.Background(), model.Aria2Request{ItemRef: audioRef})

	assert.Equal(t, "lecture_audio_1700000000000.mp3", f.agent.gotFilename)
}

func TestSendToAria2_NotFound(t *testing.T) {
	f := newFixture(nil)

	res := f.svc.SendToAria2(context.Background(), model.Aria2Request{ItemRef: audioRef})

	assert.False(t, res.Success)
	assert.Equal(t, ErrNotFound.Error(), res.Error)
	assert.Equal(t, []string{"Aria2 error: video entry not found"}, f.notifier.msgs)
	assert.Nil(t, f.agent.gotRec)
}

func TestSendToAria2_AgentError(t *testing.T) {
	f := newFixture(fakeSettings{})
	f.store.ObserveURL(audioURL, "T1")
	f.agent.err = aria2.ErrNotConfigured

	res := f.svc.SendToAria2(context.Background(), model.Aria2Request{ItemRef: audioRef})

	assert.False(t, res.Success)
	assert.Equal(t, aria2.ErrNotConfigured.Error(), res.Error)
	assert.False(t, f.history.rows[0].Success)
}

func TestSendToAria2_SettingsError(t *testing.T) {
	f := newFixture(fakeSettings{err: errors.New("db closed")})
	f.store.ObserveURL(audioURL, "T1")

	res := f.svc.SendToAria2(context.Background(), model.Aria2Request{ItemRef: audioRef})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "db closed")
	assert.Nil(t, f.agent.gotRec)
}

func TestGetCurlForItem(t *testing.T) {
	f := newFixture(nil)
	f.store.ObserveURL(audioURL, "T1")

	res := f.svc.GetCurlForItem(audioRef)
	require.True(t, res.Success)
	assert.Contains(t, res.Command, `-o "A_audio_140.mp4"`)
	assert.Contains(t, res.Command, `"https://r1---sn-abc.googlevideo.com/videoplayback?id=A&itag=140&mime=audio%2Fmp4"`)

	miss := f.svc.GetCurlForItem(model.ItemRef{ID: "B", Type: model.StreamVideo, Itag: "137"})
	assert.Equal(t, CommandResult{Success: false, Error: "Not found"}, miss)
}

func TestNilHost(t *testing.T) {
	svc := New(Config{Catalog: catalog.New()})

	res := svc.DownloadVideo(context.Background(), model.DownloadRequest{URL: "https://v/x"})

	assert.False(t, res.Success)
}
