// Package cache provides the typed caching layer over the key-value store:
// response envelopes, deterministic cache keys, and the cache manager.
package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind classifies an envelope so consumers can branch exhaustively
// instead of duck-typing on the payload shape.
type Kind int

const (
	// KindSuccess is a positive result carrying data.
	KindSuccess Kind = iota

	// KindNotFound is a cached negative result.
	KindNotFound

	// KindRedirect instructs the caller to restart pagination at another page.
	KindRedirect

	// KindThrottled marks an upstream rate-limit outcome. Throttled
	// envelopes are never persisted and are purged if found in the store.
	KindThrottled

	// KindUnknown marks an envelope with an unrecognized status.
	KindUnknown
)

// Envelope is the unit of persistence: every cached value is one of
// Success{200,data}, NotFound{404,error} or Redirect{303,redirect,page}.
type Envelope struct {
	Status   int             `json:"status"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Redirect bool            `json:"redirect,omitempty"`
	Page     int             `json:"page,omitempty"`
}

// Success builds a positive envelope from any JSON-serializable payload.
func Success(data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope data: %w", err)
	}
	return &Envelope{Status: http.StatusOK, Data: raw}, nil
}

// NotFound builds a negative envelope with the given message.
func NotFound(message string) *Envelope {
	return &Envelope{Status: http.StatusNotFound, Error: message}
}

// RedirectTo builds a redirect envelope pointing the caller at page.
func RedirectTo(page int) *Envelope {
	return &Envelope{Status: http.StatusSeeOther, Redirect: true, Page: page}
}

// Kind returns the envelope classification.
func (e *Envelope) Kind() Kind {
	switch e.Status {
	case http.StatusOK:
		return KindSuccess
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusSeeOther:
		return KindRedirect
	case http.StatusForbidden, http.StatusTooManyRequests:
		return KindThrottled
	default:
		return KindUnknown
	}
}

// Valid reports whether the envelope has a coherent shape for persistence.
func (e *Envelope) Valid() bool {
	switch e.Kind() {
	case KindSuccess:
		return len(e.Data) > 0
	case KindNotFound:
		return e.Error != ""
	case KindRedirect:
		return e.Redirect && e.Page >= 1
	case KindThrottled:
		return true
	default:
		return false
	}
}

// DecodeData unmarshals the success payload into v.
func (e *Envelope) DecodeData(v any) error {
	if e.Kind() != KindSuccess {
		return fmt.Errorf("envelope status %d carries no data", e.Status)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}
