package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beroset/fncs/internal/fault"
)

func TestDecodeInbound_Hello(t *testing.T) {
	msg, err := DecodeInbound([]byte("simA"), [][]byte{[]byte(TagHello), []byte("time_delta: 1s")})
	require.NoError(t, err)
	assert.Equal(t, KindHello, msg.Kind)
	assert.Equal(t, "simA", msg.Sender)
	assert.Equal(t, []byte("time_delta: 1s"), msg.Config)
}

func TestDecodeInbound_TimeRequest(t *testing.T) {
	msg, err := DecodeInbound([]byte("simA"), [][]byte{[]byte(TagTimeRequest), []byte("100000000000")})
	require.NoError(t, err)
	assert.Equal(t, KindTimeRequest, msg.Kind)
	assert.Equal(t, 100*time.Second, msg.Time)
}

func TestDecodeInbound_Publish(t *testing.T) {
	msg, err := DecodeInbound([]byte("simB"), [][]byte{[]byte(TagPublish), []byte("x"), []byte("42")})
	require.NoError(t, err)
	assert.Equal(t, KindPublish, msg.Kind)
	assert.Equal(t, "x", msg.Topic)
	assert.Equal(t, []byte("42"), msg.Value)
}

func TestDecodeInbound_ByeDie(t *testing.T) {
	msg, err := DecodeInbound([]byte("simA"), [][]byte{[]byte(TagBye)})
	require.NoError(t, err)
	assert.Equal(t, KindBye, msg.Kind)

	msg, err = DecodeInbound([]byte("simA"), [][]byte{[]byte(TagDie)})
	require.NoError(t, err)
	assert.Equal(t, KindDie, msg.Kind)
}

func TestDecodeInbound_UnknownType(t *testing.T) {
	_, err := DecodeInbound([]byte("simA"), [][]byte{[]byte("BOGUS")})
	assert.ErrorIs(t, err, fault.ErrUnknownMessageType)
}

func TestDecodeInbound_MissingFrames(t *testing.T) {
	_, err := DecodeInbound([]byte("simA"), [][]byte{[]byte(TagPublish), []byte("x")})
	assert.ErrorIs(t, err, fault.ErrMalformedMessage)

	_, err = DecodeInbound([]byte("simA"), nil)
	assert.ErrorIs(t, err, fault.ErrMalformedMessage)

	_, err = DecodeInbound([]byte("simA"), [][]byte{[]byte(TagTimeRequest), []byte("not-a-number")})
	assert.ErrorIs(t, err, fault.ErrMalformedMessage)
}

func TestOutboundFrameBuilders(t *testing.T) {
	assert.Equal(t, [][]byte{[]byte("ACK"), []byte("1"), []byte("3")}, AckFrames(1, 3))
	assert.Equal(t, [][]byte{[]byte("TIME_REQUEST"), []byte("100000000000")}, TimeRequestFrames(100*time.Second))
	assert.Equal(t, [][]byte{[]byte("PUBLISH"), []byte("x"), []byte("42")}, PublishFrames("x", []byte("42")))
	assert.Equal(t, [][]byte{[]byte("BYE")}, ByeFrames())
	assert.Equal(t, [][]byte{[]byte("DIE")}, DieFrames())
}
