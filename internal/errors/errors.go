// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned when caller input is rejected as a whole.
// Nothing is persisted when it is returned.
type ValidationError struct {
	Message string
	Items   []string
}

func (e *ValidationError) Error() string {
	if len(e.Items) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Items, ", "))
}

// NotFoundError is returned for unknown campaigns, targets or tokens.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

// TransportError wraps a failed send to a single recipient.
type TransportError struct {
	Recipient string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to %s failed: %v", e.Recipient, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IntegrityError marks a failure that must abort the triggering operation,
// such as a token collision or an unavailable store.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation during %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() error { return e.Err }

// Helper constructors

func NewValidation(message string, items ...string) error {
	return &ValidationError{Message: message, Items: items}
}

func NewNotFound(resource string, key any) error {
	return &NotFoundError{Resource: resource, Key: fmt.Sprint(key)}
}

func NewCampaignNotFound(id int) error {
	return NewNotFound("campaign", id)
}

func NewTransport(recipient string, err error) error {
	return &TransportError{Recipient: recipient, Err: err}
}

func NewIntegrity(op string, err error) error {
	return &IntegrityError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
