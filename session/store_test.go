package session

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 4, 4))
}

func TestStore_CreateGet(t *testing.T) {
	st := NewStore()

	s1 := st.Create("a.png", testImage(), []byte("a"), "png")
	s2 := st.Create("b.jpg", testImage(), []byte("b"), "jpeg")
	require.NotEmpty(t, s1.ID)
	require.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 2, st.Len())

	got, ok := st.Get(s1.ID)
	require.True(t, ok)
	assert.Same(t, s1, got)

	_, ok = st.Get("missing")
	assert.False(t, ok)
}

func TestStore_GetTouches(t *testing.T) {
	st := NewStore()
	s := st.Create("a.png", testImage(), nil, "png")

	before := s.LastSeen()
	time.Sleep(10 * time.Millisecond)

	_, ok := st.Get(s.ID)
	require.True(t, ok)
	assert.True(t, s.LastSeen().After(before))
}

func TestStore_Delete(t *testing.T) {
	st := NewStore()
	s := st.Create("a.png", testImage(), nil, "png")

	st.Delete(s.ID)
	assert.Equal(t, 0, st.Len())
	_, ok := st.Get(s.ID)
	assert.False(t, ok)

	// 删不存在的 ID 不报错
	st.Delete("missing")
}

func TestStore_Sweep(t *testing.T) {
	st := NewStore()
	idle := st.Create("idle.png", testImage(), nil, "png")
	active := st.Create("active.png", testImage(), nil, "png")

	assert.Equal(t, 0, st.Sweep(time.Hour))

	time.Sleep(30 * time.Millisecond)
	active.Touch()

	removed := st.Sweep(15 * time.Millisecond)
	assert.Equal(t, 1, removed)

	_, ok := st.Get(idle.ID)
	assert.False(t, ok)
	_, ok = st.Get(active.ID)
	assert.True(t, ok)
}
