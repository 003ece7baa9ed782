package models

import "time"

type MessageBuilder struct {
	msg *Message
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{msg: &Message{}}
}

func (b *MessageBuilder) WithID(id string) *MessageBuilder {
	b.msg.MessageID = id
	return b
}

func (b *MessageBuilder) WithFrom(from string) *MessageBuilder {
	b.msg.From = from
	return b
}

func (b *MessageBuilder) WithTo(to string) *MessageBuilder {
	b.msg.To = to
	return b
}

func (b *MessageBuilder) WithTS(ts string) *MessageBuilder {
	b.msg.TS = ts
	return b
}

func (b *MessageBuilder) WithText(text string) *MessageBuilder {
	b.msg.Text = &text
	return b
}

func (b *MessageBuilder) WithOptionalText(text *string) *MessageBuilder {
	if text != nil {
		v := *text
		b.msg.Text = &v
	}
	return b
}

func (b *MessageBuilder) WithCreatedAt(t time.Time) *MessageBuilder {
	b.msg.CreatedAt = FormatCreatedAt(t)
	return b
}

func (b *MessageBuilder) Build() *Message {
	if b.msg.CreatedAt == "" {
		b.msg.CreatedAt = FormatCreatedAt(time.Now())
	}
	out := *b.msg
	return &out
}
