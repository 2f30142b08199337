package adsapi

import (
	"encoding/json"
	"fmt"
)

// APIError is the structured error envelope the ads platform returns:
//
//	{"error":{"code":..,"error_subcode":..,"message":..,"error_user_title":..,
//	          "error_user_msg":..,"fbtrace_id":..}}
type APIError struct {
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode,omitempty"`
	Message     string `json:"message"`
	UserTitle   string `json:"error_user_title,omitempty"`
	UserMessage string `json:"error_user_msg,omitempty"`
	TraceID     string `json:"fbtrace_id,omitempty"`
	HTTPStatus  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("ads api error %d/%d: %s", e.Code, e.Subcode, e.Message)
	}
	return fmt.Sprintf("ads api error %d: %s", e.Code, e.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// parseAPIError decodes the error envelope from a non-2xx response body.
// When the body is not the expected envelope, a generic APIError carrying the
// HTTP status is returned so callers still get a classifiable error.
func parseAPIError(status int, body []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.HTTPStatus = status
		return env.Error
	}
	return &APIError{
		Code:       1,
		Message:    fmt.Sprintf("unexpected response (http %d)", status),
		HTTPStatus: status,
	}
}
