package slp

import (
	"errors"
	"fmt"
)

// ErrorCode is the 16-bit error code carried in reply PDUs (spec.md §7).
type ErrorCode uint16

// SLPv2 error codes (RFC 2608 §8.1, spec.md §7).
const (
	ErrNone                 ErrorCode = 0
	ErrLanguageNotSupported ErrorCode = 1
	ErrParseError           ErrorCode = 2
	ErrInvalidRegistration  ErrorCode = 3
	ErrScopeNotSupported    ErrorCode = 4
	ErrAuthenticationUnknown ErrorCode = 5
	ErrAuthenticationAbsent ErrorCode = 6
	ErrAuthenticationFailed ErrorCode = 7
	ErrVerNotSupported      ErrorCode = 9
	ErrInternalError        ErrorCode = 10
	ErrDABusyNow            ErrorCode = 11
	ErrOptionNotUnderstood  ErrorCode = 12
	ErrInvalidUpdate        ErrorCode = 13
	ErrMsgNotSupported      ErrorCode = 14
	ErrRefreshRejected      ErrorCode = 15
)

// String returns the RFC 2608 §8.1 mnemonic for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "OK"
	case ErrLanguageNotSupported:
		return "LANGUAGE_NOT_SUPPORTED"
	case ErrParseError:
		return "PARSE_ERROR"
	case ErrInvalidRegistration:
		return "INVALID_REGISTRATION"
	case ErrScopeNotSupported:
		return "SCOPE_NOT_SUPPORTED"
	case ErrAuthenticationUnknown:
		return "AUTHENTICATION_UNKNOWN"
	case ErrAuthenticationAbsent:
		return "AUTHENTICATION_ABSENT"
	case ErrAuthenticationFailed:
		return "AUTHENTICATION_FAILED"
	case ErrVerNotSupported:
		return "VER_NOT_SUPPORTED"
	case ErrInternalError:
		return "INTERNAL_ERROR"
	case ErrDABusyNow:
		return "DA_BUSY_NOW"
	case ErrOptionNotUnderstood:
		return "OPTION_NOT_UNDERSTOOD"
	case ErrInvalidUpdate:
		return "INVALID_UPDATE"
	case ErrMsgNotSupported:
		return "MSG_NOT_SUPPORTED"
	case ErrRefreshRejected:
		return "REFRESH_REJECTED"
	default:
		return fmt.Sprintf("ERROR_CODE(%d)", uint16(e))
	}
}

// ErrPDUTooShort indicates a PDU body ended before all fixed fields could
// be read. Wrapped by the lower-level buffer.ErrBufferUnderrun already
// seen at the field level; this sentinel marks the outer body-level check.
var ErrPDUTooShort = errors.New("slp: pdu body truncated")

// URLEntry is the URL-entry structure embedded in SrvReg, SrvDeReg,
// SrvRply, and SAAdvert (spec.md §3: "Lifetime, URL, zero or more
// authenticator blocks").
type URLEntry struct {
	Lifetime uint16
	URL      string
	Auth     []AuthBlock
}

func decodeURLEntry(b *buffer) (URLEntry, error) {
	var e URLEntry
	var err error
	if e.Lifetime, err = b.readUint16(); err != nil {
		return URLEntry{}, fmt.Errorf("decode url-entry lifetime: %w", err)
	}
	if e.URL, err = b.readString(); err != nil {
		return URLEntry{}, fmt.Errorf("decode url-entry url: %w", err)
	}
	if e.Auth, err = decodeAuthBlockList(b); err != nil {
		return URLEntry{}, fmt.Errorf("decode url-entry auth: %w", err)
	}
	return e, nil
}

func encodeURLEntry(b *buffer, e URLEntry) error {
	if err := b.writeUint16(e.Lifetime); err != nil {
		return err
	}
	if err := b.writeString(e.URL); err != nil {
		return err
	}
	return encodeAuthBlockList(b, e.Auth)
}

func urlEntryEncodedLen(e URLEntry) int {
	return 2 + stringEncodedLen(e.URL) + authBlockListEncodedLen(e.Auth)
}

// -------------------------------------------------------------------------
// SrvRqst (RFC 2608 §8.2)
// -------------------------------------------------------------------------

// SrvRqstBody is the SrvRqst PDU body (spec.md §4.2).
type SrvRqstBody struct {
	PRList      string // comma-separated previous-responder addresses
	ServiceType string
	ScopeList   string // comma-separated
	Predicate   string
	SPIStr      string
}

func decodeSrvRqst(b *buffer) (SrvRqstBody, error) {
	var m SrvRqstBody
	var err error
	if m.PRList, err = b.readString(); err != nil {
		return SrvRqstBody{}, fmt.Errorf("decode srvrqst prlist: %w", err)
	}
	if m.ServiceType, err = b.readString(); err != nil {
		return SrvRqstBody{}, fmt.Errorf("decode srvrqst service-type: %w", err)
	}
	if m.ScopeList, err = b.readString(); err != nil {
		return SrvRqstBody{}, fmt.Errorf("decode srvrqst scope-list: %w", err)
	}
	if m.Predicate, err = b.readString(); err != nil {
		return SrvRqstBody{}, fmt.Errorf("decode srvrqst predicate: %w", err)
	}
	if m.SPIStr, err = b.readString(); err != nil {
		return SrvRqstBody{}, fmt.Errorf("decode srvrqst spi: %w", err)
	}
	return m, nil
}

func encodeSrvRqst(b *buffer, m SrvRqstBody) error {
	for _, s := range []string{m.PRList, m.ServiceType, m.ScopeList, m.Predicate, m.SPIStr} {
		if err := b.writeString(s); err != nil {
			return err
		}
	}
	return nil
}

func srvRqstEncodedLen(m SrvRqstBody) int {
	return stringEncodedLen(m.PRList) + stringEncodedLen(m.ServiceType) +
		stringEncodedLen(m.ScopeList) + stringEncodedLen(m.Predicate) + stringEncodedLen(m.SPIStr)
}

// -------------------------------------------------------------------------
// SrvRply (RFC 2608 §8.3)
// -------------------------------------------------------------------------

// SrvRplyBody is the SrvRply PDU body.
type SrvRplyBody struct {
	ErrorCode ErrorCode
	URLs      []URLEntry
}

func decodeSrvRply(b *buffer) (SrvRplyBody, error) {
	var m SrvRplyBody
	code, err := b.readUint16()
	if err != nil {
		return SrvRplyBody{}, fmt.Errorf("decode srvrply errorcode: %w", err)
	}
	m.ErrorCode = ErrorCode(code)
	count, err := b.readUint16()
	if err != nil {
		return SrvRplyBody{}, fmt.Errorf("decode srvrply url count: %w", err)
	}
	m.URLs = make([]URLEntry, 0, count)
	for i := 0; i < int(count); i++ {
		e, err := decodeURLEntry(b)
		if err != nil {
			return SrvRplyBody{}, fmt.Errorf("decode srvrply url %d of %d: %w", i+1, count, err)
		}
		m.URLs = append(m.URLs, e)
	}
	return m, nil
}

func encodeSrvRply(b *buffer, m SrvRplyBody) error {
	if err := b.writeUint16(uint16(m.ErrorCode)); err != nil {
		return err
	}
	if len(m.URLs) > 0xFFFF {
		return fmt.Errorf("slp: %d url entries exceeds uint16 count", len(m.URLs))
	}
	if err := b.writeUint16(uint16(len(m.URLs))); err != nil { //nolint:gosec // bounds checked above
		return err
	}
	for _, e := range m.URLs {
		if err := encodeURLEntry(b, e); err != nil {
			return err
		}
	}
	return nil
}

func srvRplyEncodedLen(m SrvRplyBody) int {
	n := 2 + 2
	for _, e := range m.URLs {
		n += urlEntryEncodedLen(e)
	}
	return n
}

// -------------------------------------------------------------------------
// SrvReg (RFC 2608 §8.4)
// -------------------------------------------------------------------------

// SrvRegBody is the SrvReg PDU body (spec.md §4.2: "a URL entry,
// service-type, scope list, attribute list, attribute authenticator count
// and blocks").
type SrvRegBody struct {
	URL         URLEntry
	ServiceType string
	ScopeList   string
	AttrList    string
	AttrAuth    []AuthBlock
}

func decodeSrvReg(b *buffer) (SrvRegBody, error) {
	var m SrvRegBody
	var err error
	if m.URL, err = decodeURLEntry(b); err != nil {
		return SrvRegBody{}, fmt.Errorf("decode srvreg url-entry: %w", err)
	}
	if m.ServiceType, err = b.readString(); err != nil {
		return SrvRegBody{}, fmt.Errorf("decode srvreg service-type: %w", err)
	}
	if m.ScopeList, err = b.readString(); err != nil {
		return SrvRegBody{}, fmt.Errorf("decode srvreg scope-list: %w", err)
	}
	if m.AttrList, err = b.readString(); err != nil {
		return SrvRegBody{}, fmt.Errorf("decode srvreg attr-list: %w", err)
	}
	if m.AttrAuth, err = decodeAuthBlockList(b); err != nil {
		return SrvRegBody{}, fmt.Errorf("decode srvreg attr-auth: %w", err)
	}
	return m, nil
}

func encodeSrvReg(b *buffer, m SrvRegBody) error {
	if err := encodeURLEntry(b, m.URL); err != nil {
		return err
	}
	if err := b.writeString(m.ServiceType); err != nil {
		return err
	}
	if err := b.writeString(m.ScopeList); err != nil {
		return err
	}
	if err := b.writeString(m.AttrList); err != nil {
		return err
	}
	return encodeAuthBlockList(b, m.AttrAuth)
}

func srvRegEncodedLen(m SrvRegBody) int {
	return urlEntryEncodedLen(m.URL) + stringEncodedLen(m.ServiceType) +
		stringEncodedLen(m.ScopeList) + stringEncodedLen(m.AttrList) + authBlockListEncodedLen(m.AttrAuth)
}

// -------------------------------------------------------------------------
// SrvDeReg (RFC 2608 §8.5)
// -------------------------------------------------------------------------

// SrvDeRegBody is the SrvDeReg PDU body. Authentication for the
// deregistration travels inside URL.Auth (spec.md §4.5: "the deregister
// must carry a valid authenticator over the same SPI").
type SrvDeRegBody struct {
	ScopeList string
	URL       URLEntry
	TagList   string
}

func decodeSrvDeReg(b *buffer) (SrvDeRegBody, error) {
	var m SrvDeRegBody
	var err error
	if m.ScopeList, err = b.readString(); err != nil {
		return SrvDeRegBody{}, fmt.Errorf("decode srvdereg scope-list: %w", err)
	}
	if m.URL, err = decodeURLEntry(b); err != nil {
		return SrvDeRegBody{}, fmt.Errorf("decode srvdereg url-entry: %w", err)
	}
	if m.TagList, err = b.readString(); err != nil {
		return SrvDeRegBody{}, fmt.Errorf("decode srvdereg tag-list: %w", err)
	}
	return m, nil
}

func encodeSrvDeReg(b *buffer, m SrvDeRegBody) error {
	if err := b.writeString(m.ScopeList); err != nil {
		return err
	}
	if err := encodeURLEntry(b, m.URL); err != nil {
		return err
	}
	return b.writeString(m.TagList)
}

func srvDeRegEncodedLen(m SrvDeRegBody) int {
	return stringEncodedLen(m.ScopeList) + urlEntryEncodedLen(m.URL) + stringEncodedLen(m.TagList)
}

// -------------------------------------------------------------------------
// SrvAck (RFC 2608 §8.6)
// -------------------------------------------------------------------------

// SrvAckBody is the SrvAck PDU body: nothing but an error code
// (spec.md §4.2).
type SrvAckBody struct {
	ErrorCode ErrorCode
}

func decodeSrvAck(b *buffer) (SrvAckBody, error) {
	code, err := b.readUint16()
	if err != nil {
		return SrvAckBody{}, fmt.Errorf("decode srvack errorcode: %w", err)
	}
	return SrvAckBody{ErrorCode: ErrorCode(code)}, nil
}

func encodeSrvAck(b *buffer, m SrvAckBody) error {
	return b.writeUint16(uint16(m.ErrorCode))
}

func srvAckEncodedLen(SrvAckBody) int { return 2 }

// -------------------------------------------------------------------------
// AttrRqst (RFC 2608 §8.7)
// -------------------------------------------------------------------------

// AttrRqstBody is the AttrRqst PDU body.
type AttrRqstBody struct {
	PRList    string
	URLOrType string // a service URL, or a service-type for a type-wide query
	ScopeList string
	TagList   string
	SPIStr    string
}

func decodeAttrRqst(b *buffer) (AttrRqstBody, error) {
	var m AttrRqstBody
	var err error
	if m.PRList, err = b.readString(); err != nil {
		return AttrRqstBody{}, fmt.Errorf("decode attrrqst prlist: %w", err)
	}
	if m.URLOrType, err = b.readString(); err != nil {
		return AttrRqstBody{}, fmt.Errorf("decode attrrqst url-or-type: %w", err)
	}
	if m.ScopeList, err = b.readString(); err != nil {
		return AttrRqstBody{}, fmt.Errorf("decode attrrqst scope-list: %w", err)
	}
	if m.TagList, err = b.readString(); err != nil {
		return AttrRqstBody{}, fmt.Errorf("decode attrrqst tag-list: %w", err)
	}
	if m.SPIStr, err = b.readString(); err != nil {
		return AttrRqstBody{}, fmt.Errorf("decode attrrqst spi: %w", err)
	}
	return m, nil
}

func encodeAttrRqst(b *buffer, m AttrRqstBody) error {
	for _, s := range []string{m.PRList, m.URLOrType, m.ScopeList, m.TagList, m.SPIStr} {
		if err := b.writeString(s); err != nil {
			return err
		}
	}
	return nil
}

func attrRqstEncodedLen(m AttrRqstBody) int {
	return stringEncodedLen(m.PRList) + stringEncodedLen(m.URLOrType) +
		stringEncodedLen(m.ScopeList) + stringEncodedLen(m.TagList) + stringEncodedLen(m.SPIStr)
}

// -------------------------------------------------------------------------
// AttrRply (RFC 2608 §8.8)
// -------------------------------------------------------------------------

// AttrRplyBody is the AttrRply PDU body.
type AttrRplyBody struct {
	ErrorCode ErrorCode
	AttrList  string
	Auth      []AuthBlock
}

func decodeAttrRply(b *buffer) (AttrRplyBody, error) {
	var m AttrRplyBody
	code, err := b.readUint16()
	if err != nil {
		return AttrRplyBody{}, fmt.Errorf("decode attrrply errorcode: %w", err)
	}
	m.ErrorCode = ErrorCode(code)
	if m.AttrList, err = b.readString(); err != nil {
		return AttrRplyBody{}, fmt.Errorf("decode attrrply attr-list: %w", err)
	}
	if m.Auth, err = decodeAuthBlockList(b); err != nil {
		return AttrRplyBody{}, fmt.Errorf("decode attrrply auth: %w", err)
	}
	return m, nil
}

func encodeAttrRply(b *buffer, m AttrRplyBody) error {
	if err := b.writeUint16(uint16(m.ErrorCode)); err != nil {
		return err
	}
	if err := b.writeString(m.AttrList); err != nil {
		return err
	}
	return encodeAuthBlockList(b, m.Auth)
}

func attrRplyEncodedLen(m AttrRplyBody) int {
	return 2 + stringEncodedLen(m.AttrList) + authBlockListEncodedLen(m.Auth)
}

// -------------------------------------------------------------------------
// DAAdvert (RFC 2608 §8.9)
// -------------------------------------------------------------------------

// DAAdvertBody is the DAAdvert PDU body (spec.md §3, §4.2: "error code,
// boot timestamp, URL, scope list, attribute list, SPI list,
// authenticator blocks").
type DAAdvertBody struct {
	ErrorCode ErrorCode
	BootTime  uint32 // epoch-seconds; 0 on a DA's final "going down" advert
	URL       string
	ScopeList string
	AttrList  string
	SPIList   string
	Auth      []AuthBlock
}

func decodeDAAdvert(b *buffer) (DAAdvertBody, error) {
	var m DAAdvertBody
	code, err := b.readUint16()
	if err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert errorcode: %w", err)
	}
	m.ErrorCode = ErrorCode(code)
	if m.BootTime, err = b.readUint32(); err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert boot-timestamp: %w", err)
	}
	if m.URL, err = b.readString(); err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert url: %w", err)
	}
	if m.ScopeList, err = b.readString(); err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert scope-list: %w", err)
	}
	if m.AttrList, err = b.readString(); err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert attr-list: %w", err)
	}
	if m.SPIList, err = b.readString(); err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert spi-list: %w", err)
	}
	if m.Auth, err = decodeAuthBlockList(b); err != nil {
		return DAAdvertBody{}, fmt.Errorf("decode daadvert auth: %w", err)
	}
	return m, nil
}

func encodeDAAdvert(b *buffer, m DAAdvertBody) error {
	if err := b.writeUint16(uint16(m.ErrorCode)); err != nil {
		return err
	}
	if err := b.writeUint32(m.BootTime); err != nil {
		return err
	}
	for _, s := range []string{m.URL, m.ScopeList, m.AttrList, m.SPIList} {
		if err := b.writeString(s); err != nil {
			return err
		}
	}
	return encodeAuthBlockList(b, m.Auth)
}

func daAdvertEncodedLen(m DAAdvertBody) int {
	return 2 + 4 + stringEncodedLen(m.URL) + stringEncodedLen(m.ScopeList) +
		stringEncodedLen(m.AttrList) + stringEncodedLen(m.SPIList) + authBlockListEncodedLen(m.Auth)
}

// -------------------------------------------------------------------------
// SrvTypeRqst (RFC 2608 §8.10)
// -------------------------------------------------------------------------

// SrvTypeRqstBody is the SrvTypeRqst PDU body.
type SrvTypeRqstBody struct {
	PRList          string
	NamingAuthority string // empty means IANA; "*" means "all authorities"
	ScopeList       string
}

func decodeSrvTypeRqst(b *buffer) (SrvTypeRqstBody, error) {
	var m SrvTypeRqstBody
	var err error
	if m.PRList, err = b.readString(); err != nil {
		return SrvTypeRqstBody{}, fmt.Errorf("decode srvtyperqst prlist: %w", err)
	}
	if m.NamingAuthority, err = b.readString(); err != nil {
		return SrvTypeRqstBody{}, fmt.Errorf("decode srvtyperqst naming-authority: %w", err)
	}
	if m.ScopeList, err = b.readString(); err != nil {
		return SrvTypeRqstBody{}, fmt.Errorf("decode srvtyperqst scope-list: %w", err)
	}
	return m, nil
}

func encodeSrvTypeRqst(b *buffer, m SrvTypeRqstBody) error {
	for _, s := range []string{m.PRList, m.NamingAuthority, m.ScopeList} {
		if err := b.writeString(s); err != nil {
			return err
		}
	}
	return nil
}

func srvTypeRqstEncodedLen(m SrvTypeRqstBody) int {
	return stringEncodedLen(m.PRList) + stringEncodedLen(m.NamingAuthority) + stringEncodedLen(m.ScopeList)
}

// -------------------------------------------------------------------------
// SrvTypeRply (RFC 2608 §8.11)
// -------------------------------------------------------------------------

// SrvTypeRplyBody is the SrvTypeRply PDU body.
type SrvTypeRplyBody struct {
	ErrorCode   ErrorCode
	SrvTypeList string // comma-separated
}

func decodeSrvTypeRply(b *buffer) (SrvTypeRplyBody, error) {
	var m SrvTypeRplyBody
	code, err := b.readUint16()
	if err != nil {
		return SrvTypeRplyBody{}, fmt.Errorf("decode srvtyperply errorcode: %w", err)
	}
	m.ErrorCode = ErrorCode(code)
	if m.SrvTypeList, err = b.readString(); err != nil {
		return SrvTypeRplyBody{}, fmt.Errorf("decode srvtyperply srvtype-list: %w", err)
	}
	return m, nil
}

func encodeSrvTypeRply(b *buffer, m SrvTypeRplyBody) error {
	if err := b.writeUint16(uint16(m.ErrorCode)); err != nil {
		return err
	}
	return b.writeString(m.SrvTypeList)
}

func srvTypeRplyEncodedLen(m SrvTypeRplyBody) int {
	return 2 + stringEncodedLen(m.SrvTypeList)
}

// -------------------------------------------------------------------------
// SAAdvert (RFC 2608 §8.12)
// -------------------------------------------------------------------------

// SAAdvertBody is the SAAdvert PDU body.
type SAAdvertBody struct {
	URL       string
	ScopeList string
	AttrList  string
	Auth      []AuthBlock
}

func decodeSAAdvert(b *buffer) (SAAdvertBody, error) {
	var m SAAdvertBody
	var err error
	if m.URL, err = b.readString(); err != nil {
		return SAAdvertBody{}, fmt.Errorf("decode saadvert url: %w", err)
	}
	if m.ScopeList, err = b.readString(); err != nil {
		return SAAdvertBody{}, fmt.Errorf("decode saadvert scope-list: %w", err)
	}
	if m.AttrList, err = b.readString(); err != nil {
		return SAAdvertBody{}, fmt.Errorf("decode saadvert attr-list: %w", err)
	}
	if m.Auth, err = decodeAuthBlockList(b); err != nil {
		return SAAdvertBody{}, fmt.Errorf("decode saadvert auth: %w", err)
	}
	return m, nil
}

func encodeSAAdvert(b *buffer, m SAAdvertBody) error {
	if err := b.writeString(m.URL); err != nil {
		return err
	}
	if err := b.writeString(m.ScopeList); err != nil {
		return err
	}
	if err := b.writeString(m.AttrList); err != nil {
		return err
	}
	return encodeAuthBlockList(b, m.Auth)
}

func saAdvertEncodedLen(m SAAdvertBody) int {
	return stringEncodedLen(m.URL) + stringEncodedLen(m.ScopeList) +
		stringEncodedLen(m.AttrList) + authBlockListEncodedLen(m.Auth)
}

// -------------------------------------------------------------------------
// Message — header + typed body union
// -------------------------------------------------------------------------

// Message is a fully parsed SLPv2 PDU: the common header plus exactly one
// populated body field selected by Header.Function. Extensions are parsed
// separately and attached by the caller since their placement depends on
// ExtOffset, not PDU kind.
type Message struct {
	Header Header

	SrvRqst     *SrvRqstBody
	SrvRply     *SrvRplyBody
	SrvReg      *SrvRegBody
	SrvDeReg    *SrvDeRegBody
	SrvAck      *SrvAckBody
	AttrRqst    *AttrRqstBody
	AttrRply    *AttrRplyBody
	DAAdvert    *DAAdvertBody
	SrvTypeRqst *SrvTypeRqstBody
	SrvTypeRply *SrvTypeRplyBody
	SAAdvert    *SAAdvertBody

	Extensions []Extension
}

// Decode parses a complete SLPv2 message from raw, dispatching on the
// header's function ID to the matching body parser (spec.md §4.2).
func Decode(raw []byte) (Message, error) {
	b := newReadBuffer(raw)
	h, err := decodeHeader(b)
	if err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if h.Version != Version {
		return Message{}, fmt.Errorf("decode message: version %d: %w", h.Version, ErrVersionMismatch)
	}

	msg := Message{Header: h}
	if err := decodeBody(&msg, b); err != nil {
		return Message{}, fmt.Errorf("decode %s body: %w", h.Function, err)
	}

	exts, err := decodeExtensions(raw, h.ExtOffset)
	if err != nil {
		return Message{}, fmt.Errorf("decode message extensions: %w", err)
	}
	msg.Extensions = exts
	return msg, nil
}

func decodeBody(msg *Message, b *buffer) error {
	switch msg.Header.Function {
	case FuncSrvRqst:
		m, err := decodeSrvRqst(b)
		msg.SrvRqst = &m
		return err
	case FuncSrvRply:
		m, err := decodeSrvRply(b)
		msg.SrvRply = &m
		return err
	case FuncSrvReg:
		m, err := decodeSrvReg(b)
		msg.SrvReg = &m
		return err
	case FuncSrvDeReg:
		m, err := decodeSrvDeReg(b)
		msg.SrvDeReg = &m
		return err
	case FuncSrvAck:
		m, err := decodeSrvAck(b)
		msg.SrvAck = &m
		return err
	case FuncAttrRqst:
		m, err := decodeAttrRqst(b)
		msg.AttrRqst = &m
		return err
	case FuncAttrRply:
		m, err := decodeAttrRply(b)
		msg.AttrRply = &m
		return err
	case FuncDAAdvert:
		m, err := decodeDAAdvert(b)
		msg.DAAdvert = &m
		return err
	case FuncSrvTypeRqst:
		m, err := decodeSrvTypeRqst(b)
		msg.SrvTypeRqst = &m
		return err
	case FuncSrvTypeRply:
		m, err := decodeSrvTypeRply(b)
		msg.SrvTypeRply = &m
		return err
	case FuncSAAdvert:
		m, err := decodeSAAdvert(b)
		msg.SAAdvert = &m
		return err
	default:
		return fmt.Errorf("slp: unknown function id %d", uint8(msg.Header.Function))
	}
}

// Encode serializes msg. It computes the total message length up front,
// allocates exactly that many bytes, then writes the header followed by
// the body selected by Header.Function (spec.md §4.2: "Serializers
// compute the full byte length first, allocate exactly that size, then
// write").
func Encode(msg Message) ([]byte, error) {
	bodyLen, err := bodyEncodedLen(msg)
	if err != nil {
		return nil, err
	}
	total := headerEncodedLen(msg.Header) + bodyLen
	msg.Header.Length = uint32(total) //nolint:gosec // SLP PDUs are bounded well under 2^24 by MTU/TCP practice

	b := newWriteBuffer(total)
	if err := encodeHeader(b, msg.Header); err != nil {
		return nil, fmt.Errorf("encode message header: %w", err)
	}
	if err := encodeBody(b, msg); err != nil {
		return nil, fmt.Errorf("encode %s body: %w", msg.Header.Function, err)
	}
	if b.bytesWritten() != total {
		return nil, fmt.Errorf("slp: encoded %d bytes, expected %d (length monotonicity violated)", b.bytesWritten(), total)
	}
	return b.data, nil
}

func bodyEncodedLen(msg Message) (int, error) {
	switch msg.Header.Function {
	case FuncSrvRqst:
		return requireBody(msg.SrvRqst, srvRqstEncodedLen)
	case FuncSrvRply:
		return requireBody(msg.SrvRply, srvRplyEncodedLen)
	case FuncSrvReg:
		return requireBody(msg.SrvReg, srvRegEncodedLen)
	case FuncSrvDeReg:
		return requireBody(msg.SrvDeReg, srvDeRegEncodedLen)
	case FuncSrvAck:
		return requireBody(msg.SrvAck, srvAckEncodedLen)
	case FuncAttrRqst:
		return requireBody(msg.AttrRqst, attrRqstEncodedLen)
	case FuncAttrRply:
		return requireBody(msg.AttrRply, attrRplyEncodedLen)
	case FuncDAAdvert:
		return requireBody(msg.DAAdvert, daAdvertEncodedLen)
	case FuncSrvTypeRqst:
		return requireBody(msg.SrvTypeRqst, srvTypeRqstEncodedLen)
	case FuncSrvTypeRply:
		return requireBody(msg.SrvTypeRply, srvTypeRplyEncodedLen)
	case FuncSAAdvert:
		return requireBody(msg.SAAdvert, saAdvertEncodedLen)
	default:
		return 0, fmt.Errorf("slp: unknown function id %d", uint8(msg.Header.Function))
	}
}

func encodeBody(b *buffer, msg Message) error {
	switch msg.Header.Function {
	case FuncSrvRqst:
		return encodeSrvRqst(b, *msg.SrvRqst)
	case FuncSrvRply:
		return encodeSrvRply(b, *msg.SrvRply)
	case FuncSrvReg:
		return encodeSrvReg(b, *msg.SrvReg)
	case FuncSrvDeReg:
		return encodeSrvDeReg(b, *msg.SrvDeReg)
	case FuncSrvAck:
		return encodeSrvAck(b, *msg.SrvAck)
	case FuncAttrRqst:
		return encodeAttrRqst(b, *msg.AttrRqst)
	case FuncAttrRply:
		return encodeAttrRply(b, *msg.AttrRply)
	case FuncDAAdvert:
		return encodeDAAdvert(b, *msg.DAAdvert)
	case FuncSrvTypeRqst:
		return encodeSrvTypeRqst(b, *msg.SrvTypeRqst)
	case FuncSrvTypeRply:
		return encodeSrvTypeRply(b, *msg.SrvTypeRply)
	case FuncSAAdvert:
		return encodeSAAdvert(b, *msg.SAAdvert)
	default:
		return fmt.Errorf("slp: unknown function id %d", uint8(msg.Header.Function))
	}
}

// requireBody guards against encoding a Message whose body pointer for
// its own Header.Function was left nil.
func requireBody[T any](body *T, lenFn func(T) int) (int, error) {
	if body == nil {
		return 0, fmt.Errorf("slp: %w: nil body for function", ErrPDUTooShort)
	}
	return lenFn(*body), nil
}
