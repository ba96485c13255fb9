package errors

// ERR identifies the category of an Error.  The numeric values are stable so
// they can be logged and compared across releases.
type ERR int32

const (
	ERR_UNKNOWN          ERR = 0
	ERR_INVALID_ARGUMENT ERR = 1
	ERR_NOT_FOUND        ERR = 2
	ERR_PROCESSING       ERR = 3
	ERR_CONFIGURATION    ERR = 4
	ERR_SERVICE_ERROR    ERR = 5
	ERR_CONTEXT_CANCELED ERR = 6

	// Peer-local wire and protocol failures.
	ERR_DECODE           ERR = 20
	ERR_PROTOCOL         ERR = 21
	ERR_MESSAGE_TOO_BIG  ERR = 22
	ERR_PEER_BANNED      ERR = 23
	ERR_PEER_NOT_READY   ERR = 24
	ERR_REQUEST_TIMEOUT  ERR = 25
	ERR_REQUEST_PENDING  ERR = 26
	ERR_HANDSHAKE_FAILED ERR = 27

	// Header acceptance failures.
	ERR_HEADER_UNKNOWN_PARENT    ERR = 40
	ERR_HEADER_INSUFFICIENT_WORK ERR = 41
	ERR_HEADER_TIME_TOO_NEW      ERR = 42
	ERR_HEADER_DUPLICATE         ERR = 43
	ERR_HEADER_INVALID           ERR = 44
	ERR_EXCESSIVE_REORG          ERR = 45
	ERR_BLOCK_NOT_FOUND          ERR = 46
	ERR_BLOCK_INVALID            ERR = 47
)

// ERR_name maps an error code to its symbolic name.
var ERR_name = map[int32]string{
	0:  "UNKNOWN",
	1:  "INVALID_ARGUMENT",
	2:  "NOT_FOUND",
	3:  "PROCESSING",
	4:  "CONFIGURATION",
	5:  "SERVICE_ERROR",
	6:  "CONTEXT_CANCELED",
	20: "DECODE",
	21: "PROTOCOL",
	22: "MESSAGE_TOO_BIG",
	23: "PEER_BANNED",
	24: "PEER_NOT_READY",
	25: "REQUEST_TIMEOUT",
	26: "REQUEST_PENDING",
	27: "HANDSHAKE_FAILED",
	40: "HEADER_UNKNOWN_PARENT",
	41: "HEADER_INSUFFICIENT_WORK",
	42: "HEADER_TIME_TOO_NEW",
	43: "HEADER_DUPLICATE",
	44: "HEADER_INVALID",
	45: "EXCESSIVE_REORG",
	46: "BLOCK_NOT_FOUND",
	47: "BLOCK_INVALID",
}

// Enum returns the symbolic name of the error code.
func (e ERR) Enum() string {
	if name, ok := ERR_name[int32(e)]; ok {
		return name
	}

	return "INVALID"
}

var (
	ErrUnknown                = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument        = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound               = New(ERR_NOT_FOUND, "not found")
	ErrProcessing             = New(ERR_PROCESSING, "error processing")
	ErrConfiguration          = New(ERR_CONFIGURATION, "configuration error")
	ErrServiceError           = New(ERR_SERVICE_ERROR, "service error")
	ErrContextCanceled        = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrDecode                 = New(ERR_DECODE, "malformed message")
	ErrProtocol               = New(ERR_PROTOCOL, "protocol violation")
	ErrMessageTooBig          = New(ERR_MESSAGE_TOO_BIG, "message exceeds size ceiling")
	ErrPeerBanned             = New(ERR_PEER_BANNED, "peer is banned")
	ErrPeerNotReady           = New(ERR_PEER_NOT_READY, "peer has not completed handshake")
	ErrRequestTimeout         = New(ERR_REQUEST_TIMEOUT, "request timed out")
	ErrRequestPending         = New(ERR_REQUEST_PENDING, "request already pending")
	ErrHandshakeFailed        = New(ERR_HANDSHAKE_FAILED, "handshake failed")
	ErrHeaderUnknownParent    = New(ERR_HEADER_UNKNOWN_PARENT, "header parent not found")
	ErrHeaderInsufficientWork = New(ERR_HEADER_INSUFFICIENT_WORK, "header proof-of-work invalid")
	ErrHeaderTimeTooNew       = New(ERR_HEADER_TIME_TOO_NEW, "header timestamp too far in the future")
	ErrHeaderDuplicate        = New(ERR_HEADER_DUPLICATE, "duplicate header")
	ErrHeaderInvalid          = New(ERR_HEADER_INVALID, "header invalid")
	ErrExcessiveReorg         = New(ERR_EXCESSIVE_REORG, "reorg depth exceeds policy ceiling")
	ErrBlockNotFound          = New(ERR_BLOCK_NOT_FOUND, "block not found")
	ErrBlockInvalid           = New(ERR_BLOCK_INVALID, "block invalid")
)

// errors initialization functions

func NewUnknownError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN, message, params...)
}
func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewDecodeError(message string, params ...interface{}) error {
	return New(ERR_DECODE, message, params...)
}
func NewProtocolError(message string, params ...interface{}) error {
	return New(ERR_PROTOCOL, message, params...)
}
func NewMessageTooBigError(message string, params ...interface{}) error {
	return New(ERR_MESSAGE_TOO_BIG, message, params...)
}
func NewPeerBannedError(message string, params ...interface{}) error {
	return New(ERR_PEER_BANNED, message, params...)
}
func NewPeerNotReadyError(message string, params ...interface{}) error {
	return New(ERR_PEER_NOT_READY, message, params...)
}
func NewRequestTimeoutError(message string, params ...interface{}) error {
	return New(ERR_REQUEST_TIMEOUT, message, params...)
}
func NewRequestPendingError(message string, params ...interface{}) error {
	return New(ERR_REQUEST_PENDING, message, params...)
}
func NewHandshakeFailedError(message string, params ...interface{}) error {
	return New(ERR_HANDSHAKE_FAILED, message, params...)
}
func NewHeaderUnknownParentError(message string, params ...interface{}) error {
	return New(ERR_HEADER_UNKNOWN_PARENT, message, params...)
}
func NewHeaderInsufficientWorkError(message string, params ...interface{}) error {
	return New(ERR_HEADER_INSUFFICIENT_WORK, message, params...)
}
func NewHeaderTimeTooNewError(message string, params ...interface{}) error {
	return New(ERR_HEADER_TIME_TOO_NEW, message, params...)
}
func NewHeaderDuplicateError(message string, params ...interface{}) error {
	return New(ERR_HEADER_DUPLICATE, message, params...)
}
func NewHeaderInvalidError(message string, params ...interface{}) error {
	return New(ERR_HEADER_INVALID, message, params...)
}
func NewExcessiveReorgError(message string, params ...interface{}) error {
	return New(ERR_EXCESSIVE_REORG, message, params...)
}
func NewBlockNotFoundError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_NOT_FOUND, message, params...)
}
func NewBlockInvalidError(message string, params ...interface{}) error {
	return New(ERR_BLOCK_INVALID, message, params...)
}
