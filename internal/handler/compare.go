// Package handler provides HTTP handlers for the imagediff browser API.
package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/CageChen/imagediff/internal/browser"
	"github.com/CageChen/imagediff/internal/compare"
	mfs "github.com/CageChen/imagediff/internal/fs"
	"github.com/CageChen/imagediff/internal/report"
)

// EntryItem is one row of the entry list.
type EntryItem struct {
	Index  int            `json:"index"`
	Path   string         `json:"path"`
	Status compare.Status `json:"status"`
}

// EntriesResponse represents the current comparison snapshot
type EntriesResponse struct {
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Counts      compare.Counts `json:"counts"`
	Entries     []EntryItem    `json:"entries"`
	Selected    int            `json:"selected"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// SelectionResponse is a selection plus the diff image as a data URI.
type SelectionResponse struct {
	*browser.Selection
	DiffImage string `json:"diffImage,omitempty"`
}

// CopyRequest is the body of a copy action. Path is the relative path the
// client displayed at Index; the copy follows Path if the entries moved.
type CopyRequest struct {
	Index *int   `json:"index" binding:"required"`
	Path  string `json:"path" binding:"required"`
}

// CompareHandler exposes a browser.Controller over HTTP.
type CompareHandler struct {
	ctrl   *browser.Controller
	report *report.Renderer
}

// NewCompareHandler creates a new compare handler
func NewCompareHandler(ctrl *browser.Controller) *CompareHandler {
	return &CompareHandler{
		ctrl:   ctrl,
		report: report.NewRenderer(),
	}
}

// Register mounts the comparison routes on an API group.
func (h *CompareHandler) Register(api *gin.RouterGroup) {
	api.GET("/entries", h.GetEntries)
	api.GET("/entries/:index", h.SelectEntry)
	api.GET("/image/:side/*path", h.GetImage)
	api.POST("/copy", h.Copy)
	api.POST("/refresh", h.Refresh)
	api.GET("/report", h.GetReport)
}

func newEntriesResponse(r *compare.Result, selected int) EntriesResponse {
	resp := EntriesResponse{
		Counts:    r.Counts,
		Entries:   make([]EntryItem, len(r.Entries)),
		Selected:  selected,
		CreatedAt: r.CreatedAt,
	}
	if r.Source != nil {
		resp.Source = r.Source.Root
	}
	if r.Destination != nil {
		resp.Destination = r.Destination.Root
	}
	for i, e := range r.Entries {
		resp.Entries[i] = EntryItem{Index: i, Path: e.Path, Status: e.Status}
	}
	return resp
}

// GetEntries returns the current snapshot
func (h *CompareHandler) GetEntries(c *gin.Context) {
	r := h.ctrl.Snapshot()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": browser.ErrNoSnapshot.Error()})
		return
	}
	c.JSON(http.StatusOK, newEntriesResponse(r, h.ctrl.Selected()))
}

// SelectEntry selects an entry and returns what the three panes display
func (h *CompareHandler) SelectEntry(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}

	sel, err := h.ctrl.Select(index)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := SelectionResponse{Selection: sel}
	if sel.Diff.Rendered {
		resp.DiffImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(sel.Diff.PNG)
	}
	c.JSON(http.StatusOK, resp)
}

// GetImage returns the raw bytes of an image on one side
func (h *CompareHandler) GetImage(c *gin.Context) {
	fsys, ok := h.ctrl.Root(browser.Side(c.Param("side")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown side"})
		return
	}

	rel := strings.TrimPrefix(c.Param("path"), "/")
	if err := mfs.ValidateRelPath(rel); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid path"})
		return
	}

	// Only classified images on that side are served, never arbitrary files.
	if !h.inSnapshot(browser.Side(c.Param("side")), rel) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	info, err := fsys.Stat(rel)
	if err != nil || info.IsDir {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	content, err := fsys.ReadFile(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to read file: %v", err),
		})
		return
	}

	contentType := mime.TypeByExtension(path.Ext(rel))
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}
	c.Data(http.StatusOK, contentType, content)
}

// Copy copies the source file of an entry over the destination
func (h *CompareHandler) Copy(c *gin.Context) {
	// A JSON content type forces a CORS preflight, which cross-site pages fail.
	if c.ContentType() != binding.MIMEJSON {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "expected " + binding.MIMEJSON})
		return
	}

	var req CopyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	rep, err := h.ctrl.Copy(c.Request.Context(), *req.Index, req.Path)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Refresh rescans both roots
func (h *CompareHandler) Refresh(c *gin.Context) {
	r, err := h.ctrl.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, newEntriesResponse(r, h.ctrl.Selected()))
}

// GetReport renders the current snapshot as an HTML page
func (h *CompareHandler) GetReport(c *gin.Context) {
	r := h.ctrl.Snapshot()
	if r == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": browser.ErrNoSnapshot.Error()})
		return
	}

	body, err := h.report.HTML(report.NewManifest(r, nil))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report: " + err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(body))
}

func (h *CompareHandler) inSnapshot(side browser.Side, rel string) bool {
	r := h.ctrl.Snapshot()
	if r == nil {
		return false
	}
	e, ok := r.Entry(r.Index(rel))
	if !ok {
		return false
	}
	if side == browser.Source {
		return e.Status.InSource()
	}
	return e.Status.InDestination()
}

func writeError(c *gin.Context, err error) {
	var copyErr *browser.CopyError
	switch {
	case errors.As(err, &copyErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":       copyErr.Error(),
			"source":      copyErr.Source,
			"destination": copyErr.Destination,
		})
	case errors.Is(err, browser.ErrNoSnapshot):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, browser.ErrStaleEntry):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, browser.ErrIndexOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
