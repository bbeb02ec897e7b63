package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"generic", errors.New("connection reset"), true},
		{"unauthorized", fmt.Errorf("list: %w", ErrUnauthorized), false},
		{"not found", fmt.Errorf("head: %w", ErrNotFound), false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, ".db/", FolderKey(RootID, ".db"))
	assert.Equal(t, ".db/sub/", FolderKey(".db/", "sub"))
	assert.Equal(t, ".db/sub/a.txt", FileKey(".db/sub/", "a.txt"))

	assert.Equal(t, "sub", ChildName(".db/", ".db/sub/"))
	assert.Equal(t, "a.txt", ChildName(".db/sub/", ".db/sub/a.txt"))

	assert.Equal(t, "a.txt", BaseName(".db/sub/a.txt"))
	assert.Equal(t, "sub", BaseName(".db/sub/"))
	assert.Equal(t, "top", BaseName("top"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, ValidateName("a.txt"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName(".."))
	assert.Error(t, ValidateName("a/b"))

	assert.NoError(t, ValidateParent(RootID))
	assert.NoError(t, ValidateParent(".db/"))
	assert.ErrorIs(t, ValidateParent(".db/a.txt"), ErrNotFound)
}
