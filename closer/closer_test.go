package closer

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type closeFunc func() error

func (f closeFunc) Close() error {
	return f()
}

func TestErrorHandler(t *testing.T) {
	errClose := errors.New("close failed")
	errBody := errors.New("body failed")

	tests := []struct {
		name     string
		existing error
		closeErr error
		want     error
	}{
		{name: "close error is kept", closeErr: errClose, want: errClose},
		{name: "clean close leaves nil", want: nil},
		{name: "existing error wins", existing: errBody, closeErr: errClose, want: errBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closed := false
			err := tt.existing
			ErrorHandler(closeFunc(func() error {
				closed = true
				return tt.closeErr
			}), &err)

			assert.Check(t, closed)
			assert.Check(t, cmp.ErrorIs(err, tt.want))
		})
	}
}
