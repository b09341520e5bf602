// Package httpapi exposes the viewer's registration and navigation calls
// over HTTP so scripts can drive a running viewer.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clip-quickview/internal/display"
	"clip-quickview/internal/logger"
	"clip-quickview/internal/navigation"
	"clip-quickview/internal/scheduler"
	"clip-quickview/internal/sources"
)

const component = "HTTPAPI"

// Controller is the narrow viewer contract the API needs.
type Controller interface {
	RegisterSource(index int, src *sources.Source, name string) (navigation.State, error)
	RemoveSource(index int) (navigation.State, error)
	SetFrame(frame int) (navigation.State, error)
	SetIndex(index int) (navigation.State, error)
	Navigate(action navigation.Action) (navigation.State, error)
	SetPreviewGroup(frames []int) (navigation.State, error)
	ClearPreviewGroup() navigation.State
	PreviewGroup() []int
	State() navigation.State
	Slots() []sources.Slot
	Displayed() display.Frame
	Stats() scheduler.Stats
	Show()
	Hide()
}

// Opener turns a path into a registrable source.
type Opener func(path, kind string) (*sources.Source, error)

type Server struct {
	addr      string
	viewer    Controller
	open      Opener
	logger    logger.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

func NewServer(addr string, viewer Controller, open Opener, log logger.Logger) *Server {
	if addr == "" {
		addr = "127.0.0.1:3030"
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		viewer: viewer,
		open:   open,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/state", s.handleState)
	api.PUT("/sources/:index", s.handleRegister)
	api.DELETE("/sources/:index", s.handleRemove)
	api.PUT("/frame", s.handleSetFrame)
	api.PUT("/index", s.handleSetIndex)
	api.POST("/navigate", s.handleNavigate)
	api.GET("/preview-group", s.handleGetPreviewGroup)
	api.PUT("/preview-group", s.handleSetPreviewGroup)
	api.DELETE("/preview-group", s.handleClearPreviewGroup)
	api.POST("/window/show", s.handleShow)
	api.POST("/window/hide", s.handleHide)
	api.GET("/image", s.handleImage)
	return r
}

// Start begins serving on the configured address.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.startTime = time.Now()
	s.logger.Info(component, "control API listening", map[string]interface{}{
		"addr": listener.Addr().String(),
	})

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(component, err, nil)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Shutdown lets the shutdown manager stop the server.
func (s *Server) Shutdown() {
	if err := s.Stop(); err != nil {
		s.logger.Error(component, err, nil)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type slotView struct {
	Index  int     `json:"index"`
	Name   string  `json:"name"`
	Frames int     `json:"frames"`
	Color  string  `json:"color,omitempty"`
	Width  int     `json:"width,omitempty"`
	Height int     `json:"height,omitempty"`
	FPS    float64 `json:"fps,omitempty"`
}

// Clips that know their geometry or frame rate report it in the slot view.
type (
	sizedClip interface{ Size() (int, int) }
	timedClip interface{ FPS() float64 }
)

func newSlotView(slot sources.Slot) slotView {
	view := slotView{
		Index:  slot.Index,
		Name:   slot.Name,
		Frames: slot.Source.NumFrames(),
		Color:  slot.Source.Color().Family.String(),
	}
	if c, ok := slot.Source.Clip().(sizedClip); ok {
		view.Width, view.Height = c.Size()
	}
	if c, ok := slot.Source.Clip().(timedClip); ok {
		view.FPS = c.FPS()
	}
	return view
}

type displayedView struct {
	Seq         uint64 `json:"seq"`
	Index       int    `json:"index"`
	Frame       int    `json:"frame"`
	Placeholder bool   `json:"placeholder"`
}

func (s *Server) handleState(c *gin.Context) {
	slots := make([]slotView, 0, sources.SlotCount)
	for _, slot := range s.viewer.Slots() {
		if !slot.Occupied() {
			continue
		}
		slots = append(slots, newSlotView(slot))
	}

	shown := s.viewer.Displayed()
	c.JSON(http.StatusOK, gin.H{
		"navigation": s.viewer.State(),
		"slots":      slots,
		"displayed": displayedView{
			Seq:         shown.Seq,
			Index:       shown.Index,
			Frame:       shown.FrameNumber,
			Placeholder: shown.Placeholder,
		},
		"stats": s.viewer.Stats(),
	})
}

func slotIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err == nil {
		err = sources.ValidateIndex(index)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot index"})
		return 0, false
	}
	return index, true
}

func (s *Server) handleRegister(c *gin.Context) {
	index, ok := slotIndex(c)
	if !ok {
		return
	}

	var req struct {
		Path string `json:"path" binding:"required"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing path field"})
		return
	}

	src, err := s.open(req.Path, req.Kind)
	if err != nil {
		s.logger.Warning(component, "source failed to open", map[string]interface{}{
			"path":  req.Path,
			"error": err.Error(),
		})
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	state, err := s.viewer.RegisterSource(index, src, req.Name)
	if err != nil {
		src.Close()
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleRemove(c *gin.Context) {
	index, ok := slotIndex(c)
	if !ok {
		return
	}
	state, err := s.viewer.RemoveSource(index)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleSetFrame(c *gin.Context) {
	var req struct {
		Frame *int `json:"frame" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing frame field"})
		return
	}
	state, err := s.viewer.SetFrame(*req.Frame)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleSetIndex(c *gin.Context) {
	var req struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing index field"})
		return
	}
	state, err := s.viewer.SetIndex(*req.Index)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleNavigate(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing action field"})
		return
	}
	action, err := navigation.ParseAction(req.Action)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	state, err := s.viewer.Navigate(action)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleGetPreviewGroup(c *gin.Context) {
	frames := s.viewer.PreviewGroup()
	if frames == nil {
		frames = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"frames": frames})
}

func (s *Server) handleSetPreviewGroup(c *gin.Context) {
	var req struct {
		Frames []int `json:"frames"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	state, err := s.viewer.SetPreviewGroup(req.Frames)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleClearPreviewGroup(c *gin.Context) {
	c.JSON(http.StatusOK, s.viewer.ClearPreviewGroup())
}

func (s *Server) handleShow(c *gin.Context) {
	s.viewer.Show()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHide(c *gin.Context) {
	s.viewer.Hide()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleImage(c *gin.Context) {
	shown := s.viewer.Displayed()
	if shown.Image == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "nothing displayed yet"})
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, shown.Image); err != nil {
		s.logger.Error(component, err, map[string]interface{}{"seq": shown.Seq})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode image"})
		return
	}

	c.Header("X-Frame-Seq", strconv.FormatUint(shown.Seq, 10))
	c.Header("X-Frame-Index", strconv.Itoa(shown.Index))
	c.Header("X-Frame-Number", strconv.Itoa(shown.FrameNumber))
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sources.ErrInvalidSlotIndex),
		errors.Is(err, sources.ErrNegativeFrame),
		errors.Is(err, sources.ErrNilSource):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, navigation.ErrUnknownAction):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		s.logger.Error(component, err, map[string]interface{}{"path": c.FullPath()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
