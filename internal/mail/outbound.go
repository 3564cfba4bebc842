package mail

import (
	"strconv"

	"github.com/rs/xid"
)

// RecipientDisposition classifies the server's response to an outbound
// recipient addition, mirroring the original client's response-code
// buckets for the RCPT/RCCC/RBCC family of commands.
type RecipientDisposition int

const (
	// RecipientOK means the address resolved cleanly.
	RecipientOK RecipientDisposition = iota
	// RecipientAmbiguous means the address matched more than one directory entry.
	RecipientAmbiguous
	// RecipientNotFound means the address did not resolve.
	RecipientNotFound
	// RecipientLoop means adding the address would create a mailing-list loop.
	RecipientLoop
	// RecipientPermission means the sender lacks permission to address this recipient.
	RecipientPermission
)

// Recipient-response code classification, grounded in the original client's
// _read_response. One recipient command may yield several response lines
// (e.g. when a name expands to several addresses): the terminator codes
// 28 and 40-43 end the exchange, while 29 and 44-47 carry the same
// dispositions with further lines still to follow.
var recipientDispositions = map[int]RecipientDisposition{
	28: RecipientOK,
	29: RecipientOK,
	40: RecipientAmbiguous,
	44: RecipientAmbiguous,
	41: RecipientNotFound,
	45: RecipientNotFound,
	42: RecipientLoop,
	46: RecipientLoop,
	43: RecipientPermission,
	47: RecipientPermission,
}

// OutboundMessage composes a message for sending, via the CLEA/TOPC/MDAT/
// RCPT family of commands.
type OutboundMessage struct {
	session *Session
	draftID xid.ID
}

func newOutboundMessage(sess *Session) *OutboundMessage {
	return &OutboundMessage{session: sess, draftID: xid.New()}
}

// DraftID returns a locally-generated identifier for this composition,
// stable for its lifetime, for correlating a draft across log lines before
// the server assigns the message its own identity at SEND.
func (o *OutboundMessage) DraftID() string {
	return o.draftID.String()
}

// Reset clears the message body and metadata, via CLEA.
func (o *OutboundMessage) Reset() error {
	return o.simple("CLEA")
}

// ResetRecipients clears the recipient list only, via CLER.
func (o *OutboundMessage) ResetRecipients() error {
	return o.simple("CLER")
}

// SetAudit sets the audit trail annotation, via AUDT.
func (o *OutboundMessage) SetAudit(audit string) error {
	return o.arg("AUDT", audit)
}

// SetSubject sets the message subject, via TOPC.
func (o *OutboundMessage) SetSubject(subject string) error {
	return o.arg("TOPC", subject)
}

// SetPlainBody uploads a plain-text body, via sized MDAT upload.
func (o *OutboundMessage) SetPlainBody(body []byte) error {
	return o.setBody(body, false)
}

// SetMIMEBody uploads a MIME body, via sized MDAT upload with the MIME flag set.
func (o *OutboundMessage) SetMIMEBody(body []byte) error {
	return o.setBody(body, true)
}

func (o *OutboundMessage) setBody(body []byte, mime bool) error {
	flag := "0"
	if mime {
		flag = "1"
	}
	if err := o.session.base.Command("MDAT", ' ', strconv.Itoa(len(body)), flag); err != nil {
		return err
	}
	if _, _, err := o.session.expect(50); err != nil {
		return err
	}
	if err := o.session.base.RawSend(body); err != nil {
		return err
	}
	_, _, err := o.session.expect(10)
	return err
}

// AddToRecipient adds a To: recipient, via RCPT, returning one disposition
// per response line the server sends for it.
func (o *OutboundMessage) AddToRecipient(name string) ([]RecipientDisposition, error) {
	return o.addRecipient("RCPT", name)
}

// AddCCRecipient adds a Cc: recipient, via RCCC, returning one disposition
// per response line the server sends for it.
func (o *OutboundMessage) AddCCRecipient(name string) ([]RecipientDisposition, error) {
	return o.addRecipient("RCCC", name)
}

// AddBCCRecipient adds a Bcc: recipient, via RBCC, returning one disposition
// per response line the server sends for it.
func (o *OutboundMessage) AddBCCRecipient(name string) ([]RecipientDisposition, error) {
	return o.addRecipient("RBCC", name)
}

// addRecipient sends cmd and reads response lines until a terminator code.
func (o *OutboundMessage) addRecipient(cmd, name string) ([]RecipientDisposition, error) {
	if err := o.session.base.Command(cmd, ' ', name); err != nil {
		return nil, err
	}
	var out []RecipientDisposition
	for {
		code, _, err := o.session.base.Expect(28, 29, 40, 41, 42, 43, 44, 45, 46, 47)
		if err != nil {
			return out, err
		}
		out = append(out, recipientDispositions[code])
		switch code {
		case 28, 40, 41, 42, 43:
			return out, nil
		}
	}
}

// SetReplyTo sets the reply-to address, via RPL2.
func (o *OutboundMessage) SetReplyTo(addr string) error {
	return o.arg("RPL2", addr)
}

// RequestReceipt requests a return receipt, via RTRN.
func (o *OutboundMessage) RequestReceipt() error {
	return o.simple("RTRN")
}

// HideRecipients hides the recipient list from delivered copies, via HIDE.
func (o *OutboundMessage) HideRecipients() error {
	return o.simple("HIDE")
}

// Send transmits the composed message, via SEND.
func (o *OutboundMessage) Send() error {
	return o.simple("SEND")
}

func (o *OutboundMessage) simple(cmd string) error {
	if err := o.session.base.Command(cmd, ' '); err != nil {
		return err
	}
	_, _, err := o.session.expect(10)
	return err
}

func (o *OutboundMessage) arg(cmd, val string) error {
	if err := o.session.base.Command(cmd, ' ', val); err != nil {
		return err
	}
	_, _, err := o.session.expect(10)
	return err
}
