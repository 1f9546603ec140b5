package wire

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beroset/fncs/internal/fault"
)

// Kind identifies the type of an inbound message, replacing the source's
// chain of string comparisons with a single switch at decode time.
type Kind int

const (
	KindHello Kind = iota
	KindTimeRequest
	KindTimeDelta
	KindPublish
	KindBye
	KindDie
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return TagHello
	case KindTimeRequest:
		return TagTimeRequest
	case KindTimeDelta:
		return TagTimeDelta
	case KindPublish:
		return TagPublish
	case KindBye:
		return TagBye
	case KindDie:
		return TagDie
	default:
		return "UNKNOWN"
	}
}

// Inbound is the tagged union of every message the broker can receive.
// Only the fields relevant to Kind are populated.
type Inbound struct {
	Kind   Kind
	Sender string
	Config []byte        // HELLO
	Time   time.Duration // TIME_REQUEST, TIME_DELTA
	Topic  string        // PUBLISH
	Value  []byte        // PUBLISH
}

// DecodeInbound turns a raw sender frame plus the frames following it into a
// tagged Inbound message. frames must not include the sender frame itself.
func DecodeInbound(sender []byte, frames [][]byte) (*Inbound, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: missing type tag frame", fault.ErrMalformedMessage)
	}

	msg := &Inbound{Sender: string(sender)}
	tag := string(frames[0])
	rest := frames[1:]

	switch tag {
	case TagHello:
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: HELLO missing config frame", fault.ErrMalformedMessage)
		}
		msg.Kind = KindHello
		msg.Config = rest[0]

	case TagTimeRequest:
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: TIME_REQUEST missing time frame", fault.ErrMalformedMessage)
		}
		t, err := decodeSimTime(rest[0])
		if err != nil {
			return nil, err
		}
		msg.Kind = KindTimeRequest
		msg.Time = t

	case TagTimeDelta:
		if len(rest) < 1 {
			return nil, fmt.Errorf("%w: TIME_DELTA missing delta frame", fault.ErrMalformedMessage)
		}
		d, err := decodeSimTime(rest[0])
		if err != nil {
			return nil, err
		}
		msg.Kind = KindTimeDelta
		msg.Time = d

	case TagPublish:
		if len(rest) < 2 {
			return nil, fmt.Errorf("%w: PUBLISH missing topic or value frame", fault.ErrMalformedMessage)
		}
		msg.Kind = KindPublish
		msg.Topic = string(rest[0])
		msg.Value = rest[1]

	case TagBye:
		msg.Kind = KindBye

	case TagDie:
		msg.Kind = KindDie

	default:
		return nil, fmt.Errorf("%w: %q", fault.ErrUnknownMessageType, tag)
	}

	return msg, nil
}

func decodeSimTime(frame []byte) (time.Duration, error) {
	n, err := strconv.ParseInt(string(frame), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad time frame %q: %v", fault.ErrMalformedMessage, frame, err)
	}
	return time.Duration(n), nil
}

func encodeSimTime(t time.Duration) []byte {
	return []byte(strconv.FormatInt(int64(t), 10))
}

// AckFrames builds the frames of an outbound ACK(ordinal, total).
func AckFrames(ordinal, total int) [][]byte {
	return [][]byte{
		[]byte(TagAck),
		[]byte(strconv.Itoa(ordinal)),
		[]byte(strconv.Itoa(total)),
	}
}

// TimeRequestFrames builds the frames of an outbound TIME_REQUEST(grantedTime).
func TimeRequestFrames(grantedTime time.Duration) [][]byte {
	return [][]byte{
		[]byte(TagTimeRequest),
		encodeSimTime(grantedTime),
	}
}

// PublishFrames builds the frames of an outbound PUBLISH(topic, value).
func PublishFrames(topic string, value []byte) [][]byte {
	return [][]byte{
		[]byte(TagPublish),
		[]byte(topic),
		value,
	}
}

// ByeFrames builds the frames of an outbound BYE.
func ByeFrames() [][]byte {
	return [][]byte{[]byte(TagBye)}
}

// DieFrames builds the frames of an outbound DIE.
func DieFrames() [][]byte {
	return [][]byte{[]byte(TagDie)}
}
