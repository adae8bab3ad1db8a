package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmellis/chatlog/internal/model"
	"github.com/google/uuid"
)

// Record is the JSON document external collaborators drop into the
// spool directory, one event per file.
type Record struct {
	Kind      string `json:"kind"` // "text" or "call"
	Account   string `json:"account"`
	Channel   string `json:"channel,omitempty"`
	LogID     string `json:"log_id,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix seconds
	Sender    Party  `json:"sender"`
	Receiver  Party  `json:"receiver"`

	// Text fields.
	Message     string `json:"message,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	Signal      string `json:"signal,omitempty"`
	PendingID   *int   `json:"pending_id,omitempty"`

	// Call fields.
	DurationSeconds   int64  `json:"duration_seconds,omitempty"`
	EndActor          *Party `json:"end_actor,omitempty"`
	EndReason         string `json:"end_reason,omitempty"`
	DetailedEndReason string `json:"detailed_end_reason,omitempty"`
}

// Party is a participant reference inside a Record.
type Party struct {
	Type        string `json:"type"` // contact, room or self
	ID          string `json:"id"`
	Alias       string `json:"alias,omitempty"`
	AvatarToken string `json:"avatar_token,omitempty"`
}

func (p Party) entity() (model.Entity, error) {
	switch p.Type {
	case "contact":
		return model.NewContact(p.ID, p.Alias, p.AvatarToken), nil
	case "room":
		return model.NewRoom(p.ID), nil
	case "self":
		return model.NewSelf(p.ID, p.Alias), nil
	}
	return model.Entity{}, fmt.Errorf("unknown party type %q", p.Type)
}

// Event validates the record and turns it into a domain event. Records
// arriving without a log id get one derived from the channel; records
// without a channel get a throwaway channel identity first, since the
// derivation needs one.
func (r *Record) Event() (model.Event, error) {
	if r.Account == "" {
		return nil, errors.New("record missing account")
	}
	if r.Timestamp == 0 {
		return nil, errors.New("record missing timestamp")
	}
	sender, err := r.Sender.entity()
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	receiver, err := r.Receiver.entity()
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	pending := model.PendingAcknowledged
	if r.PendingID != nil {
		pending = *r.PendingID
	}

	channel := r.Channel
	if channel == "" {
		channel = "spool/" + uuid.NewString()
	}
	logID := r.LogID
	if logID == "" {
		logID = model.LogToken(channel, r.Timestamp, pending)
	}

	info := model.EventInfo{
		Account:     r.Account,
		ChannelPath: channel,
		LogID:       logID,
		Sender:      sender,
		Receiver:    receiver,
		Timestamp:   time.Unix(r.Timestamp, 0),
	}

	switch r.Kind {
	case "text":
		if r.Message == "" {
			return nil, errors.New("text record missing message")
		}
		signal := model.SignalType(r.Signal)
		if signal == "" {
			signal = model.SignalReceived
		}
		return &model.TextEvent{
			EventInfo:   info,
			MessageType: model.ParseMessageType(r.MessageType),
			SignalType:  signal,
			Message:     r.Message,
			PendingID:   pending,
		}, nil
	case "call":
		duration := time.Duration(r.DurationSeconds) * time.Second
		if r.DurationSeconds < 0 {
			duration = model.NeverStarted
		}
		actor := sender
		if r.EndActor != nil {
			actor, err = r.EndActor.entity()
			if err != nil {
				return nil, fmt.Errorf("end actor: %w", err)
			}
		}
		reason := model.CallEndReason(r.EndReason)
		if reason == "" {
			reason = model.EndReasonUnknown
		}
		return &model.CallEvent{
			EventInfo:         info,
			Duration:          duration,
			EndActor:          actor,
			EndReason:         reason,
			DetailedEndReason: r.DetailedEndReason,
		}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", r.Kind)
}
