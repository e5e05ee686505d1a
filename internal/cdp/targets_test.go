package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mafredri/cdp/devtool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediasniff/internal/logger"
	"mediasniff/pkg/model"
)

func TestIsUserPageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://classroom.google.com/c/123", true},
		{"http://localhost:3000/", true},
		{"chrome://newtab/", false},
		{"devtools://devtools/bundled/inspector.html", false},
		{"chrome-extension://abc/popup.html", false},
		{"about:blank", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, isUserPageURL(tt.url))
		})
	}
}

func TestUserPages(t *testing.T) {
	targets := []*devtool.Target{
		{ID: "A", Type: devtool.Page, URL: "https://drive.google.com/file/d/x"},
		{ID: "B", Type: devtool.Page, URL: "chrome://settings"},
		{ID: "C", Type: "service_worker", URL: "https://drive.google.com/sw.js"},
		nil,
		{ID: "", Type: devtool.Page, URL: "https://example.com"},
		{ID: "D", Type: devtool.Page, URL: "https://example.com"},
	}

	got := userPages(targets)

	assert.Len(t, got, 2)
	assert.Contains(t, got, model.TabID("A"))
	assert.Contains(t, got, model.TabID("D"))
}

func TestSelectActivePage(t *testing.T) {
	targets := []*devtool.Target{
		{ID: "X", Type: devtool.Page, URL: "chrome://newtab/", Title: "New Tab"},
		{ID: "A", Type: devtool.Page, URL: "https://classroom.google.com", Title: "Lecture 1"},
		{ID: "B", Type: devtool.Page, URL: "https://drive.google.com", Title: "Drive"},
	}

	got := selectActivePage(targets)

	require.NotNil(t, got)
	assert.Equal(t, "A", got.ID)
	assert.Nil(t, selectActivePage(targets[:1]))
}

func TestHost_ActiveTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/json/list" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"E","type":"page","url":"chrome-extension://x/bg.html","title":"ext"},
			{"id":"A","type":"page","url":"https://classroom.google.com/c/1","title":"Week 1 Lecture"}
		]`))
	}))
	defer srv.Close()

	h := NewHost(srv.URL, t.TempDir(), logger.NewNoopLogger())

	assert.Equal(t, "Week 1 Lecture", h.ActiveTitle(context.Background()))
}

func TestHost_ActiveTitleUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := NewHost(url, t.TempDir(), nil)

	assert.Equal(t, "", h.ActiveTitle(context.Background()))
}
