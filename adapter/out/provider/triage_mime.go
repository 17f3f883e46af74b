package provider

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"triage_server/core/port/out"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const maxPartSize = 2 << 20

// ParseRawMessage parses an RFC 5322 message into headers and its inline
// text parts. Attachments are skipped.
func ParseRawMessage(id string, raw []byte) (*out.ProviderMessage, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message %s: %w", id, err)
	}

	msg := &out.ProviderMessage{ID: id, Headers: make(map[string]string)}
	fields := mr.Header.Fields()
	for fields.Next() {
		key := fields.Key()
		if _, seen := msg.Headers[key]; seen {
			continue
		}
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		msg.Headers[key] = value
	}

	if msg.Subject, err = mr.Header.Subject(); err != nil {
		msg.Subject = mr.Header.Get("Subject")
	}
	msg.From = fromAddress(mr.Header)
	if date, err := mr.Header.Date(); err == nil {
		msg.ReceivedAt = date
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && (p == nil || !message.IsUnknownCharset(err)) {
			if len(msg.Parts) > 0 {
				break
			}
			return nil, fmt.Errorf("read parts of %s: %w", id, err)
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, err := h.ContentType()
		if err != nil || ct == "" {
			ct = "text/plain"
		}
		if !strings.HasPrefix(ct, "text/") {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(p.Body, maxPartSize))
		if err != nil && len(body) == 0 {
			continue
		}
		msg.Parts = append(msg.Parts, out.MessagePart{ContentType: ct, Content: string(body)})
	}

	if ct, _, _ := mr.Header.ContentType(); !strings.HasPrefix(ct, "multipart/") && len(msg.Parts) == 1 {
		msg.Body = msg.Parts[0].Content
	}
	return msg, nil
}

func fromAddress(h mail.Header) string {
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(h.Get("From"))
	}
	a := addrs[0]
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}
