package boxerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs(t *testing.T) {
	err := New(NotFound, "no bead named %q", "alpha")
	assert.True(t, Is(err, NotFound))
	assert.False(t, Is(err, Ambiguous))
	assert.False(t, Is(errors.New("plain error"), NotFound))
}

func TestWrap_Unwraps(t *testing.T) {
	inner := errors.New("disk full")
	err := Wrap(IndexUnwritable, inner, "write failed")
	require.Error(t, err)
	assert.True(t, errors.Is(err, inner))
	assert.True(t, Is(err, IndexUnwritable))
}

func TestWithPathAndTuple(t *testing.T) {
	err := New(IndexOutOfSync, "mismatch").WithPath("/box/a.bead").WithTuple("a/c1/k1", "a/c2/k1")
	msg := err.Error()
	assert.Contains(t, msg, "/box/a.bead")
	assert.Contains(t, msg, "a/c1/k1")
	assert.Contains(t, msg, "a/c2/k1")
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "NotFound", NotFound.String())
	assert.Equal(t, "Unknown", Unknown.String())
}

func TestError_MessageIncludesWrapped(t *testing.T) {
	inner := fmt.Errorf("file is not a database")
	err := Wrap(ArchiveInvalid, inner, "open archive")
	assert.Contains(t, err.Error(), "file is not a database")
}
