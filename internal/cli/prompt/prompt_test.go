package prompt

import (
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(fmt.Errorf("reading: %w", promptui.ErrAbort)))
	assert.False(t, IsAborted(fmt.Errorf("boom")))
	assert.Equal(t, ErrAborted, wrapError(promptui.ErrInterrupt))
	assert.Nil(t, wrapError(nil))
}

func TestSecret_UsesGivenValue(t *testing.T) {
	got, err := Secret("s3cret", "Password")
	assert.NoError(t, err)
	assert.Equal(t, "s3cret", got)
}
