package averror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/ffrecorder/pkg/avlog"
)

func TestWrapDrainsCapturedLines(t *testing.T) {
	avlog.Capture.Drain()
	avlog.Capture.Append("first warning")
	avlog.Capture.Append("then an error")

	err := Wrap(KindCodec, astiav.ErrInvaliddata, "unable to open the codec %q", "libx264")
	require.ErrorIs(t, err, ErrCodec)
	require.NotErrorIs(t, err, ErrIO)
	require.ErrorIs(t, err, astiav.ErrInvaliddata)
	require.Equal(t, KindCodec, KindOf(err))

	var e *Error
	require.True(t, errors.As(err, &e))
	require.Equal(t, []string{"first warning", "then an error"}, e.Details)
	require.Contains(t, err.Error(), `CodecError: unable to open the codec "libx264": `)
	require.Contains(t, err.Error(), "\nDetails:\nfirst warning\nthen an error")
	require.Zero(t, avlog.Capture.Len())
}

func TestWrapKeepsInnermostKind(t *testing.T) {
	inner := New(KindNotFound, "no video stream in %s", "a.mp4")
	outer := Wrap(KindCodec, fmt.Errorf("unable to mix: %w", inner), "mix")
	require.ErrorIs(t, outer, ErrNotFound)
	require.NotErrorIs(t, outer, ErrCodec)
	require.Nil(t, Wrap(KindIO, nil, "nothing"))
}

func TestNewDoesNotDrain(t *testing.T) {
	avlog.Capture.Drain()
	avlog.Capture.Append("unrelated")
	err := New(KindValidation, "expected %d bytes, received %d", 10, 9)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "ValidationError: expected 10 bytes, received 9", err.Error())
	require.Equal(t, 1, avlog.Capture.Len())

	err = NewWithDetails(KindIO, "unable to allocate the output context")
	require.ErrorIs(t, err, ErrIO)
	require.Contains(t, err.Error(), "Details:\nunrelated")
	require.Zero(t, avlog.Capture.Len())
}

func TestKindString(t *testing.T) {
	require.Equal(t, "IoError", KindIO.String())
	require.Equal(t, "NotFoundError", ErrNotFound.Error())
	require.Equal(t, KindUndefined, KindOf(errors.New("plain")))
}
