package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender is the From identity of outgoing mail
type Sender struct {
	Address string
	Name    string
}

// Message is an encoded RFC 5322 message
type Message struct {
	ID      string
	From    string
	To      string
	Subject string
	Data    []byte
}

// Subject returns the subject line for a template
func Subject(templateName string) string {
	return fmt.Sprintf("Your %s document", templateName)
}

// BuildMessage encodes a notification as a multipart/mixed message with
// a text part and the document as a base64 attachment
func BuildMessage(from Sender, n Notification, now time.Time) (*Message, error) {
	if err := validate(n); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(n.To); err != nil {
		return nil, &DispatchError{Message: fmt.Sprintf("invalid recipient %q: %v", n.To, err)}
	}

	fromName := from.Name
	if n.SenderName != "" {
		fromName = n.SenderName
	}
	fromHeader := (&mail.Address{Name: fromName, Address: from.Address}).String()
	toHeader := (&mail.Address{Name: n.RecipientName, Address: n.To}).String()

	msg := &Message{
		ID:      fmt.Sprintf("<%s@%s>", uuid.New().String(), extractDomain(from.Address)),
		From:    from.Address,
		To:      n.To,
		Subject: Subject(n.TemplateName),
	}

	boundary := uuid.New().String()
	var buf bytes.Buffer

	// Headers
	fmt.Fprintf(&buf, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&buf, "To: %s\r\n", toHeader)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", msg.ID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=\"%s\"\r\n", boundary)
	buf.WriteString("\r\n")

	// Text part
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(textBody(n, fromName))
	buf.WriteString("\r\n")

	// Attachment
	doc := n.Document
	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	fmt.Fprintf(&buf, "Content-Type: %s; name=%q\r\n", doc.MIMEType(), doc.FileName)
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&buf, "Content-Disposition: attachment; filename=%q\r\n", doc.FileName)
	buf.WriteString("\r\n")
	writeBase64(&buf, doc.Data)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	msg.Data = buf.Bytes()
	return msg, nil
}

func textBody(n Notification, signature string) string {
	name := n.RecipientName
	if name == "" {
		name = "recipient"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\r\n\r\n", name)
	fmt.Fprintf(&b, "Please find your %s document attached.\r\n", n.TemplateName)
	if signature != "" {
		fmt.Fprintf(&b, "\r\nBest regards,\r\n%s\r\n", signature)
	}
	return b.String()
}

// writeBase64 writes data in 76-character lines
func writeBase64(buf *bytes.Buffer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	if encoded != "" {
		buf.WriteString(encoded)
		buf.WriteString("\r\n")
	}
}

// extractDomain returns the domain of an address, or localhost
func extractDomain(address string) string {
	if addr, err := mail.ParseAddress(address); err == nil {
		address = addr.Address
	}
	at := strings.LastIndex(address, "@")
	if at <= 0 || at == len(address)-1 {
		return "localhost"
	}
	return strings.ToLower(address[at+1:])
}
