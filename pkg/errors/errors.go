// settlement-gateway/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes, one per failure class. Configuration and authorization
// problems are rejected before any state change; domain and replay
// problems abort the payment as a whole.
const (
	CodeConfig = "CONFIG"
	CodeAuth   = "AUTH"
	CodeDomain = "DOMAIN"
	CodeReplay = "REPLAY"
)

type E struct {
	Code    string
	Message string
	Err     error
}

func (e E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e E) Unwrap() error { return e.Err }

func Wrap(code, msg string, err error) error {
	return E{Code: code, Message: msg, Err: err}
}

func Config(msg string) error { return E{Code: CodeConfig, Message: msg} }
func Auth(msg string) error   { return E{Code: CodeAuth, Message: msg} }
func Domain(msg string) error { return E{Code: CodeDomain, Message: msg} }
func Replay(msg string) error { return E{Code: CodeReplay, Message: msg} }

// Code extracts the error code, or "" for errors from elsewhere.
func Code(err error) string {
	var e E
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
