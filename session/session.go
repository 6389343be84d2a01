package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/chaos-io/sam2cut/segment"
)

var (
	// ErrBusy 这个会话的分割还在跑
	ErrBusy = errors.New("segmentation already in progress")
	// ErrNoPoints 还没点过任何提示点
	ErrNoPoints = errors.New("no points selected")
)

// BBox 前景在原图坐标系下的包围盒
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ResultMeta 一次分割结果的元信息
type ResultMeta struct {
	BBox     BBox    `json:"bbox"`
	Coverage float64 `json:"coverage"`
	Size     int     `json:"size"`
}

// State 会话的对外快照，接口层直接序列化
type State struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Points    []segment.Point `json:"points"`
	Busy      bool            `json:"busy"`
	HasResult bool            `json:"has_result"`
	Result    *ResultMeta     `json:"result,omitempty"`
}

// Session 一次交互会话：一张图、积累的提示点、缓存的分割结果。
// 加点 / 重置 / 换图都会让已有结果失效，rev 记录失效次数，
// 跑完的旧结果靠它识别并丢弃
type Session struct {
	ID   string
	Name string

	mu        sync.Mutex
	img       image.Image
	raw       []byte
	rawFormat string
	points    []segment.Point
	result    []byte
	meta      ResultMeta
	busy      bool
	cancel    context.CancelFunc
	rev       int
	lastSeen  time.Time
}

func newSession(id, name string, img image.Image, raw []byte, rawFormat string) *Session {
	return &Session{
		ID:        id,
		Name:      name,
		img:       img,
		raw:       raw,
		rawFormat: rawFormat,
		lastSeen:  time.Now(),
	}
}

// Image 解码后的原图
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Raw 上传时的原始字节和格式，预览接口原样回发
func (s *Session) Raw() ([]byte, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raw, s.rawFormat
}

// AddPoint 追加一个提示点。和已有点完全重合时不追加，返回 false；
// 追加成功时作废已有结果，下一次分割按新的点集重新跑
func (s *Session) AddPoint(p segment.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.points {
		if q.X == p.X && q.Y == p.Y {
			return false
		}
	}

	s.points = append(s.points, p)
	s.invalidateLocked()
	return true
}

// ResetPoints 清空提示点和结果
func (s *Session) ResetPoints() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = nil
	s.invalidateLocked()
}

// invalidateLocked 作废当前结果：递增 rev、丢结果、
// 打断在跑的分割（其结果回来时 rev 对不上，直接丢弃）
func (s *Session) invalidateLocked() {
	s.rev++
	s.result = nil
	s.meta = ResultMeta{}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.busy = false
}

// Points 当前提示点的拷贝
func (s *Session) Points() []segment.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]segment.Point, len(s.points))
	copy(points, s.points)
	return points
}

// BeginSegment 标记分割开始，返回本次运行绑定的 rev。
// cancel 挂在会话上，运行期间点位变化时用它打断模型调用
func (s *Session) BeginSegment(cancel context.CancelFunc) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy {
		return 0, ErrBusy
	}
	if len(s.points) == 0 {
		return 0, ErrNoPoints
	}

	s.busy = true
	s.cancel = cancel
	s.result = nil
	s.meta = ResultMeta{}
	return s.rev, nil
}

// EndSegment 分割结束。rev 与当前不一致说明运行期间点位已变，
// 结果丢弃并返回 false；result 为 nil 表示本次没有产出
func (s *Session) EndSegment(rev int, result []byte, meta ResultMeta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rev != s.rev {
		return false
	}

	s.busy = false
	s.cancel = nil
	if result != nil {
		s.result = result
		s.meta = meta
	}
	return true
}

// Result 缓存的分割结果（透明 PNG 字节）
func (s *Session) Result() ([]byte, ResultMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return nil, ResultMeta{}, false
	}
	return s.result, s.meta, true
}

// Touch 刷新活跃时间
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen 最近一次访问时间
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Snapshot 当前状态快照
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]segment.Point, len(s.points))
	copy(points, s.points)

	state := State{
		ID:        s.ID,
		Name:      s.Name,
		Width:     s.img.Bounds().Dx(),
		Height:    s.img.Bounds().Dy(),
		Points:    points,
		Busy:      s.busy,
		HasResult: s.result != nil,
	}
	if s.result != nil {
		meta := s.meta
		state.Result = &meta
	}
	return state
}
