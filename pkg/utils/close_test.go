package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCloser struct {
	closed bool
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestCloseAndLog(t *testing.T) {
	f := &fakeCloser{}
	CloseAndLog(f)
	assert.True(t, f.closed)
}

func TestCloseAndLogWithError(t *testing.T) {
	// The error is logged, never propagated.
	f := &fakeCloser{err: assert.AnError}
	CloseAndLog(f)
	assert.True(t, f.closed)
}

func TestCloseAndLogNil(t *testing.T) {
	assert.NotPanics(t, func() {
		CloseAndLog(nil)
	})
}
