package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueSlice(t *testing.T) {
	assert.Equal(t, []int{1}, UniqueSlice([]int{1}))
	assert.Equal(t, []int{1}, UniqueSlice([]int{1, 1, 1}))
	assert.Equal(t, []int{1, 2}, UniqueSlice([]int{1, 1, 2}))
	assert.Equal(t, []int{1, 2, 3}, UniqueSlice([]int{1, 2, 2, 3, 3, 3}))
	assert.Equal(t, []string{"b", "a"}, UniqueSlice([]string{"b", "a", "b"}))
	assert.Empty(t, UniqueSlice([]int{}))
}

func TestCloneMap(t *testing.T) {
	type data map[string]any
	m := data{"a": 1}
	c := CloneMap(m)
	c["b"] = 2
	assert.Len(t, m, 1)
	assert.Equal(t, data{"a": 1, "b": 2}, c)
	assert.Nil(t, CloneMap(data(nil)))
}

func TestPath(t *testing.T) {
	root := NewPath("list")
	a := root.AddString("loop0")
	b := root.AddString("node")
	assert.Equal(t, "list.loop0", a.String())
	assert.Equal(t, "list.node", b.String())
	assert.Equal(t, "list", root.String())
	assert.Equal(t, []string{"list", "loop0"}, a.Export())

	// extending a child leaves its siblings alone
	a1 := a.AddString("x")
	a2 := a.AddString("y")
	assert.Equal(t, "list.loop0.x", a1.String())
	assert.Equal(t, "list.loop0.y", a2.String())
}

func TestSerialize(t *testing.T) {
	b, err := Serialize(map[string]int{"a": 1})
	assert.Nil(t, err)
	assert.Equal(t, `{"a":1}`, string(b))

	out := map[string]int{}
	assert.Nil(t, Unserialize(b, &out))
	assert.Equal(t, 1, out["a"])
	assert.NotNil(t, Unserialize([]byte("{"), &out))
}
