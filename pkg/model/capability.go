package model

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
)

// CorrelationID links a capability request to its result
type CorrelationID string

// NewCorrelationID generates a new unique CorrelationID
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New().String())
}

// CapabilitySpec describes a capability that the reasoning step may request
type CapabilitySpec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

// CapabilityRequest is created by the assistant and consumed exactly once by the orchestrator
type CapabilityRequest struct {
	ID   CorrelationID  `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`

	// Signature is an opaque token some providers attach to a call and expect back verbatim
	Signature []byte `json:"signature,omitempty"`
}

// CapabilityResult is either a structured payload or an error string, never both
type CapabilityResult struct {
	ID      CorrelationID `json:"id"`
	Name    string        `json:"name"`
	Payload any           `json:"payload,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Failed reports whether the result is the error variant
func (r *CapabilityResult) Failed() bool {
	return r.Error != ""
}

// NewCapabilityPayload builds a successful result for the request
func NewCapabilityPayload(req *CapabilityRequest, payload any) *CapabilityResult {
	return &CapabilityResult{ID: req.ID, Name: req.Name, Payload: payload}
}

// NewCapabilityError builds an error result for the request
func NewCapabilityError(req *CapabilityRequest, format string, args ...any) *CapabilityResult {
	return &CapabilityResult{ID: req.ID, Name: req.Name, Error: fmt.Sprintf(format, args...)}
}
