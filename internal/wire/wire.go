// Package wire defines the message envelope exchanged between the event
// loop and the IRC command engine. The loop stamps each inbound line with
// a session id and a timestamp; the engine returns serialized replies
// tagged with the set of sessions they must be delivered to.
package wire

import (
	"fmt"
	"time"
)

// Id identifies a message. Id is monotonically increasing per process;
// Reply distinguishes the replies generated by a single inbound message.
type Id struct {
	Id    uint64
	Reply uint64
}

func (i Id) String() string {
	return fmt.Sprintf("%d.%d", i.Id, i.Reply)
}

// Message is either an inbound line (Session set to the sender, Data the
// raw line without terminator) or an outbound reply (InterestingFor set
// to the recipient sessions, Data the serialized IRC message without
// terminator).
type Message struct {
	Id       Id
	Session  uint64
	UnixNano int64
	Data     string

	// InterestingFor lists the sessions this (outbound) message must be
	// written to. nil for inbound messages.
	InterestingFor map[uint64]bool
}

func (m *Message) Timestamp() time.Time {
	return time.Unix(0, m.UnixNano)
}
