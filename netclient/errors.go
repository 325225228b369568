package netclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// Error kinds shared by every remote service client.
var (
	ErrAuth    = errors.New("credential rejected")
	ErrNetwork = errors.New("network failure")
	ErrService = errors.New("service error")
	ErrNoText  = errors.New("no text returned")
)

const maxBodyInError = 512

// Error is a classified remote call failure. errors.Is matches its Kind and
// anything in its Cause chain.
type Error struct {
	Kind       error
	Service    string
	StatusCode int
	Body       string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.StatusCode)
	}
	if e.Body != "" {
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Network wraps a transport failure.
func Network(service string, err error) error {
	return &Error{Kind: ErrNetwork, Service: service, Cause: err}
}

// MissingCredential is returned before any request is sent.
func MissingCredential(service string) error {
	return &Error{Kind: ErrAuth, Service: service, Body: "credential not set"}
}

// NoText reports a successful call that produced nothing usable.
func NoText(service string) error {
	return &Error{Kind: ErrNoText, Service: service}
}

// FromStatus classifies an HTTP response. It returns nil for 2xx.
func FromStatus(service string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	return classify(service, status, body)
}

func classify(service string, status int, body []byte) *Error {
	kind := ErrService
	if isAuthFailure(status, body) {
		kind = ErrAuth
	}
	return &Error{Kind: kind, Service: service, StatusCode: status, Body: truncate(string(body))}
}

// Google answers a bad API key with 400 INVALID_ARGUMENT, not 401.
func isAuthFailure(status int, body []byte) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		s := string(body)
		return strings.Contains(s, "API_KEY_INVALID") || strings.Contains(s, "API key not valid")
	}
	return false
}

// FromOpenAI classifies errors returned by the go-openai client.
func FromOpenAI(service string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := classify(service, apiErr.HTTPStatusCode, []byte(apiErr.Message))
		e.Body = ""
		e.Cause = err
		return e
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 0 {
			return Network(service, err)
		}
		e := classify(service, reqErr.HTTPStatusCode, nil)
		e.Cause = err
		return e
	}
	return Network(service, err)
}

// FromGenAI classifies errors returned by the genai client.
func FromGenAI(service string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return Network(service, err)
	}
	detail := fmt.Sprintf("%s %s %v", apiErr.Status, apiErr.Message, apiErr.Details)
	e := classify(service, apiErr.Code, []byte(detail))
	e.Body = ""
	e.Cause = err
	return e
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxBodyInError {
		return s
	}
	n := maxBodyInError
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
