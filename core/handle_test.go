package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroHandleIsInvalid(t *testing.T) {
	var h Handle
	assert.False(t, h.Valid())
	assert.Equal(t, -1, h.Index())
	assert.Equal(t, "invalid", h.String())
	assert.Equal(t, InvalidHandle, h)
}

func TestHandleBounds(t *testing.T) {
	h := makeHandle(0, 1)
	assert.True(t, h.Valid())
	assert.Equal(t, 0, h.Index())
	assert.Equal(t, "0/1", h.String())

	last := makeHandle(MaxTasks-1, 7)
	assert.True(t, last.Valid())
	assert.Equal(t, MaxTasks-1, last.Index())

	out := makeHandle(MaxTasks, 1)
	assert.False(t, out.Valid())
}

func TestUtoa(t *testing.T) {
	assert.Equal(t, "0", utoa(0))
	assert.Equal(t, "4294967295", utoa(4294967295))
	assert.Equal(t, "-42", itoa(-42))
	assert.Equal(t, "17", itoa(17))
}
