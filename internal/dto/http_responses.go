package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound        = "EVENT_NOT_FOUND"
	TicketTypeNotFound   = "TICKET_TYPE_NOT_FOUND"
	RegistrationNotFound = "REGISTRATION_NOT_FOUND"
	TicketNotFound       = "TICKET_NOT_FOUND"
	SoldOut              = "SOLD_OUT"
	EventFull            = "EVENT_FULL"
	SalesClosed          = "SALES_CLOSED"
	AlreadyCheckedIn     = "ALREADY_CHECKED_IN"
	PaymentPending       = "PAYMENT_PENDING"
	RegistrationClosed   = "REGISTRATION_CANCELLED"
	GatewayRejected      = "GATEWAY_REJECTED"
	UpstreamContract     = "UPSTREAM_CONTRACT_VIOLATION"
	BadSignature         = "BAD_SIGNATURE"
)

type CreateEventRequest struct {
	Title                 string                    `json:"title" validate:"required"`
	Description           string                    `json:"description"`
	Venue                 string                    `json:"venue"`
	StartTime             time.Time                 `json:"start_time" validate:"required"`
	EndTime               time.Time                 `json:"end_time" validate:"required,future"`
	Capacity              int                       `json:"capacity" validate:"required,capacity"`
	PaymentTimeoutMinutes int                       `json:"payment_timeout_minutes" validate:"gte=1"`
	TicketTypes           []CreateTicketTypeRequest `json:"ticket_types" validate:"required,min=1,dive"`
}

type CreateTicketTypeRequest struct {
	Name         string     `json:"name" validate:"required,max=100"`
	Description  string     `json:"description"`
	Price        int        `json:"price" validate:"gte=0"`
	Quantity     int        `json:"quantity" validate:"required,capacity"`
	SalesOpenAt  *time.Time `json:"sales_open_at"`
	SalesCloseAt *time.Time `json:"sales_close_at"`
}

type CreateRegistrationRequest struct {
	TicketTypeID      uuid.UUID      `json:"ticket_type_id" validate:"required"`
	Name              string         `json:"name" validate:"required,min=2,max=255"`
	Email             string         `json:"email" validate:"required,email"`
	Phone             string         `json:"phone" validate:"required,ghphone"`
	CustomFieldValues map[string]any `json:"custom_field_values"`
}

type RegistrationResponse struct {
	ID            uuid.UUID      `json:"id"`
	EventID       uuid.UUID      `json:"event_id"`
	TicketTypeID  uuid.UUID      `json:"ticket_type_id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	TicketCode    string         `json:"ticket_code"`
	Amount        int            `json:"amount"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	CheckedInAt   *time.Time     `json:"checked_in_at,omitempty"`
	CustomFields  map[string]any `json:"custom_field_values,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	// PaymentMessage carries the gateway's prompt text for priced tiers
	// ("payment prompt sent to your phone").
	PaymentMessage string `json:"payment_message,omitempty"`
}

type TicketTypeResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       int       `json:"price"`
	Quantity    int       `json:"quantity"`
	Sold        int       `json:"sold"`
	Available   int       `json:"available"`
	OnSale      bool      `json:"on_sale"`
}

type EventResponse struct {
	ID                    uuid.UUID            `json:"id"`
	Title                 string               `json:"title"`
	Description           string               `json:"description,omitempty"`
	Venue                 string               `json:"venue,omitempty"`
	StartTime             time.Time            `json:"start_time"`
	EndTime               time.Time            `json:"end_time"`
	Capacity              int                  `json:"capacity"`
	RegisteredCount       int                  `json:"registered_count"`
	AvailableSeats        int                  `json:"available_seats"`
	Status                string               `json:"status"`
	PaymentTimeoutMinutes int                  `json:"payment_timeout_minutes"`
	TicketTypes           []TicketTypeResponse `json:"ticket_types,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

type InitiatePaymentResponse struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	Message        string    `json:"message"`
}

type CheckInRequest struct {
	TicketCode string `json:"ticket_code" validate:"required"`
}

type WebhookAck struct {
	Success       bool   `json:"success"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

type SendRemindersResponse struct {
	Sent int `json:"sent"`
}

// ExpiryMessage rides the delayed rabbit exchange; the worker cancels the
// registration if it is still unpaid when the message lands.
type ExpiryMessage struct {
	RegistrationID uuid.UUID `json:"registration_id"`
	EventID        uuid.UUID `json:"event_id"`
	ExpireAt       time.Time `json:"expire_at"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func UnauthorizedError(c *ginext.Context, code, desc string) {
	c.JSON(401, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func ConflictError(c *ginext.Context, code, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func UpstreamError(c *ginext.Context, desc string) {
	c.JSON(502, Response{
		Status: "error",
		Error:  &Error{Code: UpstreamContract, Desc: desc},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error:  &Error{Code: ServiceUnavailable, Desc: InternalError},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{Status: "ok", Data: data})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{Status: "ok", Data: data})
}
