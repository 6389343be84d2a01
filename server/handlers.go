package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chaos-io/sam2cut/imaging"
	"github.com/chaos-io/sam2cut/segment"
	"github.com/chaos-io/sam2cut/session"
)

// abortError 统一的错误响应体。模型和解码的报错原样透给前端展示
func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// lookupSession 按路径参数取会话，不存在时直接写 404
func (s *Server) lookupSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := s.store.Get(c.Param("id"))
	if !ok {
		abortError(c, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// createSession 上传图片（multipart 的 image 字段）或给 url 让服务端拉取，
// 解码成功后建会话
func (s *Server) createSession(c *gin.Context) {
	data, name, err := s.readUpload(c)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	img, format, err := imaging.DecodeBytes(data)
	if err != nil {
		abortError(c, http.StatusBadRequest, err.Error())
		return
	}

	sess := s.store.Create(name, img, data, format)
	c.JSON(http.StatusCreated, gin.H{"session": sess.Snapshot()})
}

func (s *Server) readUpload(c *gin.Context) ([]byte, string, error) {
	if file, err := c.FormFile("image"); err == nil {
		if file.Size > s.cfg.MaxUploadBytes() {
			return nil, "", fmt.Errorf("image exceeds %d MB limit", s.cfg.MaxUploadMB)
		}
		f, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer func() {
			_ = f.Close()
		}()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		return data, filepath.Base(file.Filename), nil
	}

	rawURL := c.PostForm("url")
	if rawURL == "" && strings.HasPrefix(c.ContentType(), "application/json") {
		var req struct {
			URL string `json:"url"`
		}
		if err := c.ShouldBindJSON(&req); err == nil {
			rawURL = req.URL
		}
	}
	if rawURL == "" {
		return nil, "", errors.New("no image file or url provided")
	}

	data, err := imaging.Fetch(c.Request.Context(), rawURL, s.cfg.MaxUploadBytes())
	if err != nil {
		return nil, "", err
	}
	return data, urlBasename(rawURL), nil
}

func urlBasename(raw string) string {
	base := path.Base(strings.SplitN(raw, "?", 2)[0])
	if base == "" || base == "." || base == "/" {
		return "image.png"
	}
	return base
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

func (s *Server) deleteSession(c *gin.Context) {
	if _, ok := s.lookupSession(c); !ok {
		return
	}
	s.store.Delete(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// sessionImage 回原图字节，前端 <img> 直接引用
func (s *Server) sessionImage(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	raw, format := sess.Raw()
	c.Data(http.StatusOK, formatContentType(format), raw)
}

func formatContentType(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

type addPointRequest struct {
	// 指针类型区分「没传」和「传了 0」，(0,0) 是合法的左上角点
	X     *int           `json:"x" binding:"required"`
	Y     *int           `json:"y" binding:"required"`
	Label *segment.Label `json:"label"`
}

// addPoint 在图上加一个提示点。重复点忽略，新点会作废已有结果
func (s *Server) addPoint(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}

	var req addPointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "x and y are required")
		return
	}

	label := segment.LabelForeground
	if req.Label != nil {
		label = *req.Label
	}
	if label != segment.LabelForeground && label != segment.LabelBackground {
		abortError(c, http.StatusBadRequest, "label must be 0 (background) or 1 (foreground)")
		return
	}

	state := sess.Snapshot()
	x, y := *req.X, *req.Y
	if x < 0 || x >= state.Width || y < 0 || y >= state.Height {
		abortError(c, http.StatusBadRequest,
			fmt.Sprintf("point (%d, %d) outside image bounds %dx%d", x, y, state.Width, state.Height))
		return
	}

	sess.AddPoint(segment.Point{X: x, Y: y, Label: label})
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

// resetPoints 清掉所有点和缓存结果，回到刚上传完的状态
func (s *Server) resetPoints(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}
	sess.ResetPoints()
	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

// segment 同步跑一次分割：调模型拿 mask，抠出透明 PNG 存进会话。
// 跑的过程中点位变了的话结果作废，响应 409
func (s *Server) segment(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.SegmentTimeout)
	defer cancel()

	rev, err := sess.BeginSegment(cancel)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrBusy):
			abortError(c, http.StatusConflict, err.Error())
		case errors.Is(err, session.ErrNoPoints):
			abortError(c, http.StatusBadRequest, err.Error())
		default:
			abortError(c, http.StatusInternalServerError, err.Error())
		}
		return
	}

	mask, err := s.segmenter.Segment(ctx, sess.Image(), sess.Points())
	if err != nil {
		stale := !sess.EndSegment(rev, nil, session.ResultMeta{})
		s.segmentError(c, err, stale)
		return
	}

	img := sess.Image()
	scaled := mask.ScaleTo(img.Bounds().Dx(), img.Bounds().Dy())
	if scaled.Empty() {
		_ = sess.EndSegment(rev, nil, session.ResultMeta{})
		abortError(c, http.StatusUnprocessableEntity, segment.ErrNoMask.Error())
		return
	}

	result, err := imaging.EncodePNG(segment.Cutout(img, scaled))
	if err != nil {
		_ = sess.EndSegment(rev, nil, session.ResultMeta{})
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	bbox, _ := scaled.BBox()
	meta := session.ResultMeta{
		BBox: session.BBox{
			X:      bbox.Min.X,
			Y:      bbox.Min.Y,
			Width:  bbox.Dx(),
			Height: bbox.Dy(),
		},
		Coverage: scaled.Coverage(),
		Size:     len(result),
	}
	if !sess.EndSegment(rev, result, meta) {
		abortError(c, http.StatusConflict, "session changed during segmentation, result discarded")
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess.Snapshot()})
}

func (s *Server) segmentError(c *gin.Context, err error, stale bool) {
	switch {
	case stale:
		abortError(c, http.StatusConflict, "session changed during segmentation, result discarded")
	case errors.Is(err, segment.ErrNoMask):
		abortError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		// 模型侧的报错原样透出，由前端展示
		abortError(c, http.StatusBadGateway, err.Error())
	}
}

// sessionResult 回缓存的抠图 PNG。?download=1 时带下载文件名：
// segmented_<原名第一个点之前的部分>.png
func (s *Server) sessionResult(c *gin.Context) {
	sess, ok := s.lookupSession(c)
	if !ok {
		return
	}

	result, _, ok := sess.Result()
	if !ok {
		abortError(c, http.StatusNotFound, "no result available")
		return
	}

	if c.Query("download") != "" {
		base := strings.SplitN(sess.Name, ".", 2)[0]
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "segmented_"+base+".png"))
	}
	c.Data(http.StatusOK, "image/png", result)
}
