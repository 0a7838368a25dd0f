package gmail

import (
	"encoding/base64"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"google.golang.org/api/gmail/v1"
)

const (
	unknownSender = "Unknown Sender"
	noSubject     = "No Subject"
)

var namedAddress = regexp.MustCompile(`^([^<]*?)\s*<([^>]+)>$`)

// Elements whose content never reaches the reader.
var skippedElements = map[string]bool{
	"head":     true,
	"style":    true,
	"script":   true,
	"noscript": true,
	"template": true,
	"iframe":   true,
	"object":   true,
}

// ParseMessage converts a full-format Gmail message into a Message.
func ParseMessage(msg *gmail.Message) *Message {
	message := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
		Subject:  noSubject,
		Sender:   unknownSender,
	}
	if message.Labels == nil {
		message.Labels = []string{}
	}

	var dateHeader string
	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch strings.ToLower(header.Name) {
			case "subject":
				if header.Value != "" {
					message.Subject = header.Value
				}
			case "from":
				message.SenderAddress = header.Value
				message.Sender = ParseSender(header.Value)
			case "date":
				dateHeader = header.Value
			}
		}

		var content partContent
		collectParts(msg.Payload, &content)
		message.HTML = content.html
		message.Body = content.text
		if message.Body == "" && content.html != "" {
			message.Body = StripHTML(content.html)
		}
		message.Attachments = content.attachments
	}

	message.ReceivedAt = receivedAt(msg.InternalDate, dateHeader)
	return message
}

// ParseSender extracts the display name from a From header, falling back to
// the address. "Jane Doe <jane@example.com>" yields "Jane Doe".
func ParseSender(from string) string {
	from = strings.TrimSpace(from)
	if match := namedAddress.FindStringSubmatch(from); match != nil {
		name := strings.Trim(strings.TrimSpace(match[1]), `"`)
		if name != "" {
			return name
		}
		return strings.TrimSpace(match[2])
	}
	if from == "" {
		return unknownSender
	}
	return from
}

// StripHTML reduces an HTML document to whitespace-normalized text.
// Entities are decoded and comments are dropped.
func StripHTML(doc string) string {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return ""
	}

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skippedElements[n.Data] {
				return
			}
		case html.TextNode:
			text.WriteString(n.Data)
			text.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return strings.Join(strings.Fields(text.String()), " ")
}

type partContent struct {
	text        string
	html        string
	attachments []Attachment
}

// collectParts walks the MIME tree keeping the first text and HTML bodies.
func collectParts(part *gmail.MessagePart, content *partContent) {
	if part == nil {
		return
	}

	if part.Filename != "" {
		attachment := Attachment{
			Filename: part.Filename,
			MimeType: part.MimeType,
		}
		if part.Body != nil {
			attachment.Size = part.Body.Size
			attachment.AttachmentID = part.Body.AttachmentId
		}
		content.attachments = append(content.attachments, attachment)
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if content.text == "" {
				content.text = decodeBody(part.Body.Data)
			}
		case "text/html":
			if content.html == "" {
				content.html = decodeBody(part.Body.Data)
			}
		}
	}

	for _, child := range part.Parts {
		collectParts(child, content)
	}
}

// decodeBody decodes Gmail's base64url part data, padded or not.
func decodeBody(data string) string {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

func receivedAt(internalDate int64, dateHeader string) time.Time {
	if internalDate > 0 {
		return time.UnixMilli(internalDate).UTC()
	}
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
