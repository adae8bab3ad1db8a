package model

import "time"

// MessageType is the rendering class of a text message.
type MessageType string

const (
	MessageNormal         MessageType = "normal"
	MessageAction         MessageType = "action"
	MessageNotice         MessageType = "notice"
	MessageAutoReply      MessageType = "auto-reply"
	MessageDeliveryReport MessageType = "delivery-report"
)

// ParseMessageType maps a stored type string back to a MessageType.
// Unrecognized strings fall back to MessageNormal.
func ParseMessageType(s string) MessageType {
	switch MessageType(s) {
	case MessageAction, MessageNotice, MessageAutoReply, MessageDeliveryReport:
		return MessageType(s)
	default:
		return MessageNormal
	}
}

// SignalType says which delivery signal produced a text event.
type SignalType string

const (
	SignalSent              SignalType = "sent"
	SignalReceived          SignalType = "received"
	SignalChatStatusChanged SignalType = "chat-status-changed"
	SignalSendError         SignalType = "send-error"
	SignalLostMessage       SignalType = "lost-message"
)

// Pending message id sentinels. Non-negative values are middleware-assigned
// pending ids for messages not yet acknowledged.
const (
	PendingAcknowledged = -1
	PendingUnknown      = -2
)

// CallEndReason says why a call ended.
type CallEndReason string

const (
	EndReasonUnknown       CallEndReason = "unknown"
	EndReasonUserRequested CallEndReason = "user-requested"
	EndReasonNoAnswer      CallEndReason = "no-answer"
)

// NeverStarted is the Duration of a call that was never picked up.
const NeverStarted = time.Duration(-1)

// EventInfo carries the fields common to every logged event.
type EventInfo struct {
	Account     string
	ChannelPath string
	LogID       string
	Sender      Entity
	Receiver    Entity
	Timestamp   time.Time
}

// Info returns the shared event fields.
func (i *EventInfo) Info() *EventInfo { return i }

func (*EventInfo) sealed() {}

// Event is a logged conversation event. The concrete types are
// *TextEvent and *CallEvent; no other implementations exist.
type Event interface {
	Info() *EventInfo
	sealed()
}

// TextEvent is a single text message.
type TextEvent struct {
	EventInfo
	MessageType MessageType
	SignalType  SignalType
	Message     string
	PendingID   int
}

// CallEvent records a finished (or never-started) call.
type CallEvent struct {
	EventInfo
	Duration          time.Duration
	EndActor          Entity
	EndReason         CallEndReason
	DetailedEndReason string
}

// EventMask selects event kinds in queries.
type EventMask uint

const (
	MaskText EventMask = 1 << iota
	MaskCall
	MaskAny EventMask = MaskText | MaskCall
)

// Matches reports whether the mask admits the given event.
func (m EventMask) Matches(ev Event) bool {
	switch ev.(type) {
	case *TextEvent:
		return m&MaskText != 0
	case *CallEvent:
		return m&MaskCall != 0
	}
	return false
}
