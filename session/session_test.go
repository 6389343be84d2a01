package session

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaos-io/sam2cut/segment"
)

func testSession() *Session {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	return newSession("s1", "cat.png", img, []byte("raw"), "png")
}

func storedResult(t *testing.T, s *Session) {
	t.Helper()
	rev, err := s.BeginSegment(func() {})
	require.NoError(t, err)
	require.True(t, s.EndSegment(rev, []byte("png-bytes"), ResultMeta{Coverage: 0.5, Size: 9}))
}

func TestSession_AddPoint(t *testing.T) {
	s := testSession()

	require.True(t, s.AddPoint(segment.Point{X: 10, Y: 20, Label: segment.LabelForeground}))
	require.True(t, s.AddPoint(segment.Point{X: 30, Y: 40, Label: segment.LabelForeground}))
	assert.Len(t, s.Points(), 2)
}

func TestSession_AddPoint_DuplicateIgnored(t *testing.T) {
	s := testSession()

	require.True(t, s.AddPoint(segment.Point{X: 10, Y: 20}))
	assert.False(t, s.AddPoint(segment.Point{X: 10, Y: 20}))
	assert.Len(t, s.Points(), 1)
}

func TestSession_AddPoint_DropsResult(t *testing.T) {
	s := testSession()
	require.True(t, s.AddPoint(segment.Point{X: 1, Y: 1}))
	storedResult(t, s)

	_, _, ok := s.Result()
	require.True(t, ok)

	require.True(t, s.AddPoint(segment.Point{X: 2, Y: 2}))
	_, _, ok = s.Result()
	assert.False(t, ok, "adding a point must drop the cached result")
}

func TestSession_ResetPoints(t *testing.T) {
	s := testSession()
	require.True(t, s.AddPoint(segment.Point{X: 1, Y: 1}))
	storedResult(t, s)

	s.ResetPoints()

	assert.Empty(t, s.Points())
	_, _, ok := s.Result()
	assert.False(t, ok)
}

func TestSession_BeginSegment_NoPoints(t *testing.T) {
	s := testSession()

	_, err := s.BeginSegment(func() {})
	require.ErrorIs(t, err, ErrNoPoints)
}

func TestSession_BeginSegment_Busy(t *testing.T) {
	s := testSession()
	require.True(t, s.AddPoint(segment.Point{X: 1, Y: 1}))

	_, err := s.BeginSegment(func() {})
	require.NoError(t, err)

	_, err = s.BeginSegment(func() {})
	require.ErrorIs(t, err, ErrBusy)
}

func TestSession_EndSegment_StaleRevDiscarded(t *testing.T) {
	s := testSession()
	require.True(t, s.AddPoint(segment.Point{X: 1, Y: 1}))

	cancelled := false
	rev, err := s.BeginSegment(func() { cancelled = true })
	require.NoError(t, err)

	// 运行期间加了新点：在跑的调用被打断，busy 解除
	require.True(t, s.AddPoint(segment.Point{X: 2, Y: 2}))
	assert.True(t, cancelled)
	assert.False(t, s.Snapshot().Busy)

	// 旧运行的结果回来，rev 对不上，丢弃
	assert.False(t, s.EndSegment(rev, []byte("stale"), ResultMeta{}))
	_, _, ok := s.Result()
	assert.False(t, ok)
}

func TestSession_EndSegment_NilResultClearsBusy(t *testing.T) {
	s := testSession()
	require.True(t, s.AddPoint(segment.Point{X: 1, Y: 1}))

	rev, err := s.BeginSegment(func() {})
	require.NoError(t, err)

	require.True(t, s.EndSegment(rev, nil, ResultMeta{}))
	assert.False(t, s.Snapshot().Busy)
	_, _, ok := s.Result()
	assert.False(t, ok)
}

func TestSession_Snapshot(t *testing.T) {
	s := testSession()
	require.True(t, s.AddPoint(segment.Point{X: 10, Y: 20}))
	storedResult(t, s)

	state := s.Snapshot()
	assert.Equal(t, "s1", state.ID)
	assert.Equal(t, "cat.png", state.Name)
	assert.Equal(t, 100, state.Width)
	assert.Equal(t, 50, state.Height)
	assert.Len(t, state.Points, 1)
	assert.False(t, state.Busy)
	assert.True(t, state.HasResult)
	require.NotNil(t, state.Result)
	assert.Equal(t, 0.5, state.Result.Coverage)
}
