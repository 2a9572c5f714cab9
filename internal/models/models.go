// Package models defines the core data structures for AfyaLink.
//
// It includes the booking domain records, the menu choice enums, and the
// delivery receipts and API envelopes shared across modules.
package models

// MessageStatus represents the delivery status of an outbound notification.
type MessageStatus string

const (
	// MessageStatusSent indicates the gateway accepted the message.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the gateway rejected the message or the call errored.
	MessageStatusFailed MessageStatus = "failed"
	// MessageStatusSkipped indicates the message was composed but not sent (dry run).
	MessageStatusSkipped MessageStatus = "skipped"
)

// Channel identifies how a notification was delivered.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelVoice Channel = "voice"
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// Receipt records one notification attempt.
type Receipt struct {
	ID      string        `json:"id"`
	To      string        `json:"to"`
	Channel Channel       `json:"channel"`
	Kind    string        `json:"kind"` // e.g. "booking_confirmation", "refund"
	Status  MessageStatus `json:"status"`
	Error   string        `json:"error,omitempty"`
	Time    int64         `json:"time"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
