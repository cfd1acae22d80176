package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CageChen/imagediff/internal/browser"
	"github.com/CageChen/imagediff/internal/compare"
	"github.com/CageChen/imagediff/internal/config"
	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/render"
	"github.com/CageChen/imagediff/internal/scan"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func writePNG(t *testing.T, root, rel string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
}

type fixture struct {
	router *gin.Engine
	ctrl   *browser.Controller
	ws     *WSHandler
	src    string
	dst    string
}

// newFixture serves source {img1, img2} against destination {img2, img3}.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	src, dst := t.TempDir(), t.TempDir()
	writePNG(t, src, "img1.png", color.White)
	writePNG(t, src, "img2.png", color.White)
	writePNG(t, dst, "img2.png", color.Black)
	writePNG(t, dst, "img3.png", color.Black)

	comparer := compare.NewComparer(scan.New(config.DefaultConfig(), nil), nil)
	ctrl := browser.NewController(comparer, mfs.NewLocalFS(src), mfs.NewLocalFS(dst), render.NewRenderer(nil), nil, nil)
	ws := NewWSHandler(nil)
	ctrl.OnRefresh(ws.OnComparison)
	_, err := ctrl.Refresh(context.Background())
	require.NoError(t, err)

	r := gin.New()
	api := r.Group("/api")
	NewCompareHandler(ctrl).Register(api)
	api.GET("/ws", ws.HandleWS)

	return &fixture{router: r, ctrl: ctrl, ws: ws, src: src, dst: dst}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestGetEntries(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/entries", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[EntriesResponse](t, w)
	assert.Equal(t, compare.Counts{New: 1, Common: 1, Deleted: 1}, resp.Counts)
	require.Len(t, resp.Entries, 3)
	assert.Equal(t, EntryItem{Index: 0, Path: "img2.png", Status: compare.Common}, resp.Entries[0])
	assert.Equal(t, EntryItem{Index: 1, Path: "img1.png", Status: compare.New}, resp.Entries[1])
	assert.Equal(t, EntryItem{Index: 2, Path: "img3.png", Status: compare.Deleted}, resp.Entries[2])
	assert.Equal(t, -1, resp.Selected)
	assert.Equal(t, f.src, resp.Source)
}

func TestSelectEntry_Common(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/entries/0", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Index     int                `json:"index"`
		Source    browser.ImageState `json:"source"`
		Diff      browser.DiffState  `json:"diff"`
		DiffImage string             `json:"diffImage"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Index)
	assert.True(t, resp.Source.Present)
	assert.True(t, resp.Diff.Rendered)
	assert.Equal(t, 4, resp.Diff.ChangedPixels)
	assert.True(t, strings.HasPrefix(resp.DiffImage, "data:image/png;base64,"))
	assert.Equal(t, 0, f.ctrl.Selected())
}

func TestSelectEntry_OneSided(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/entries/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "no destination image")
	assert.NotContains(t, w.Body.String(), "diffImage")
}

func TestSelectEntry_BadIndex(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/entries/abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/entries/9", "").Code)
}

func TestGetImage(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/image/source/img1.png", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	want, err := os.ReadFile(filepath.Join(f.src, "img1.png"))
	require.NoError(t, err)
	assert.Equal(t, want, w.Body.Bytes())

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/image/destination/img1.png", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/image/elsewhere/img1.png", "").Code)
}

func TestGetImage_OnlyServesSnapshotImages(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.src, "notes.txt"), []byte("private"), 0o644))
	writePNG(t, f.src, "unscanned.png", color.White)

	w := f.do(http.MethodGet, "/api/image/source/notes.txt", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "private")

	// On disk but not part of the current comparison until a refresh.
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/image/source/unscanned.png", "").Code)

	_, err := f.ctrl.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/image/source/unscanned.png", "").Code)
}

func TestGetImage_RejectsTraversal(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/image/source/sub/..%2F..%2Fsecret.png", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCopy(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/copy", `{"index": 1, "path": "img1.png"}`)
	require.Equal(t, http.StatusOK, w.Code)

	rep := decode[browser.CopyReport](t, w)
	assert.Equal(t, "img1.png", rep.Path)
	assert.Equal(t, filepath.Join(f.dst, "img1.png"), rep.Destination)

	want, err := os.ReadFile(filepath.Join(f.src, "img1.png"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(f.dst, "img1.png"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Equal(t, compare.Counts{Common: 2, Deleted: 1}, f.ctrl.Snapshot().Counts)
}

func TestCopy_Errors(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/api/copy", `{"index": 2, "path": "img3.png"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), browser.ErrNoSource.Error())

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/copy", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/copy", `{"index": 1}`).Code)
	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/copy", `{"index": 7, "path": "gone.png"}`).Code)
}

func TestCopy_RequiresJSON(t *testing.T) {
	f := newFixture(t)

	// A form post is what a cross-site page can send without a preflight.
	req := httptest.NewRequest(http.MethodPost, "/api/copy", strings.NewReader(`{"index": 1, "path": "img1.png"}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.NoFileExists(t, filepath.Join(f.dst, "img1.png"))
}

func TestCopy_AfterRefreshReordersEntries(t *testing.T) {
	f := newFixture(t)

	// The client selects img1.png at index 1.
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/entries/1", "").Code)

	// A rescan inserts a common entry, pushing img2.png to index 1.
	writePNG(t, f.src, "a.png", color.White)
	writePNG(t, f.dst, "a.png", color.White)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/refresh", "").Code)
	e, ok := f.ctrl.Snapshot().Entry(1)
	require.True(t, ok)
	require.Equal(t, "img2.png", e.Path)

	before, err := os.ReadFile(filepath.Join(f.dst, "img2.png"))
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/api/copy", `{"index": 1, "path": "img1.png"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "img1.png", decode[browser.CopyReport](t, w).Path)
	assert.FileExists(t, filepath.Join(f.dst, "img1.png"))

	after, err := os.ReadFile(filepath.Join(f.dst, "img2.png"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCopy_PathRemovedSinceSelection(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.src, "img1.png")))
	_, err := f.ctrl.Refresh(context.Background())
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/api/copy", `{"index": 1, "path": "img1.png"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), browser.ErrStaleEntry.Error())
	assert.NoFileExists(t, filepath.Join(f.dst, "img1.png"))
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	writePNG(t, f.dst, "img4.png", color.Black)

	w := f.do(http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[EntriesResponse](t, w).Counts.Deleted)
}

func TestGetReport(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "img3.png")
}

func TestWebSocket_PushesComparison(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {srv.URL}})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return f.ws.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = f.ctrl.Refresh(context.Background())
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string          `json:"type"`
		Payload EntriesResponse `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "comparison", msg.Type)
	assert.Equal(t, 3, msg.Payload.Counts.Total())
}

func TestWebSocket_RejectsCrossOrigin(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, f.ws.Clients())
}
