package idgenerator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCycleID(t *testing.T) {
	t.Parallel()

	a, b := CycleID(), CycleID()
	assert.Len(t, a, CycleIDLength)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^[0-9a-zA-Z]+$`, a)
}
