package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("line")
	b := New("line")

	assert.True(t, strings.HasPrefix(a, "line-"))
	assert.Len(t, a, len("line-")+32)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, New(""), "-")
}
