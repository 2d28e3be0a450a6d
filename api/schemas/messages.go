package schemas

import (
	"encoding/json"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// -- Message Protocol --

// Action names a request on the message channel.
type Action string

const (
	ActionDetectForms            Action = "detectForms"
	ActionCheckForForms          Action = "checkForForms"
	ActionAutoFill               Action = "autoFill"
	ActionPerformFill            Action = "performFill"
	ActionClearHighlightsAndFill Action = "clearHighlightsAndFill"
	ActionGenerateMappings       Action = "generateMappings"
)

// ErrorCode is a machine readable reason attached to failed responses.
type ErrorCode string

const (
	ErrCodeNoForms           ErrorCode = "NO_FORMS"
	ErrCodeNoData            ErrorCode = "NO_DATA"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION"
	ErrCodeSiteExcluded      ErrorCode = "SITE_EXCLUDED"
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
)

// Request is a single message sent to the autofill controller.
type Request struct {
	Action    Action `json:"action"`
	RequestID string `json:"requestId,omitempty"`

	// CVData and FormData carry the profile record. performFill accepts either.
	CVData   json.RawMessage `json:"cvData,omitempty"`
	FormData json.RawMessage `json:"formData,omitempty"`

	// Highlight asks detectForms to outline detected forms. Defaults to true.
	Highlight *bool `json:"highlight,omitempty"`
	// PersistHighlights keeps detectForms overlays until cleared explicitly.
	PersistHighlights *bool `json:"persistHighlights,omitempty"`

	// FormFields describes fields for generateMappings, which never touches the page.
	FormFields []FieldDescriptor `json:"formFields,omitempty"`
}

// Profile returns whichever profile payload the request carries.
func (r *Request) Profile() json.RawMessage {
	if len(r.CVData) > 0 && string(r.CVData) != "null" {
		return r.CVData
	}
	if len(r.FormData) > 0 && string(r.FormData) != "null" {
		return r.FormData
	}
	return nil
}

// Response answers a Request. Fields irrelevant to the action are omitted.
type Response struct {
	RequestID string    `json:"requestId,omitempty"`
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`

	Forms        []Form `json:"forms,omitempty"`
	FormsCount   *int   `json:"formsCount,omitempty"`
	FormsFound   *bool  `json:"formsFound,omitempty"`
	FieldsFilled *int   `json:"fieldsFilled,omitempty"`

	Mappings       []FieldMapping `json:"mappings,omitempty"`
	UnmappedFields []string       `json:"unmappedFields,omitempty"`
	TotalFields    *int           `json:"totalFields,omitempty"`
	MappedFields   *int           `json:"mappedFields,omitempty"`
}

// MarshalJSON writes forms whenever the response carries a form list, even an
// empty one. Responses without a list leave the key out.
func (r Response) MarshalJSON() ([]byte, error) {
	type plain Response
	if r.Forms == nil {
		return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(plain(r))
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(struct {
		plain
		Forms []Form `json:"forms"`
	}{plain(r), r.Forms})
}

// Fail builds a failed response.
func Fail(code ErrorCode, message string) *Response {
	return &Response{Success: false, Code: code, Message: message}
}

// Filled builds the response shared by the fill actions.
func Filled(n int, message string) *Response {
	return &Response{Success: true, FieldsFilled: &n, Message: message}
}

// FillFailed builds a failed fill response reporting zero fields filled.
func FillFailed(code ErrorCode, message string) *Response {
	resp := Fail(code, message)
	zero := 0
	resp.FieldsFilled = &zero
	return resp
}

// -- Detected Forms --

// Form is the wire form of a detected form.
type Form struct {
	Index      int     `json:"index"`
	IsFormless bool    `json:"isFormless"`
	Fields     []Field `json:"fields"`
}

// Field is the wire form of a classified field. Classification is null when unmatched.
type Field struct {
	Classification *string `json:"classification"`
	Name           string  `json:"name"`
	ID             string  `json:"id"`
	Placeholder    string  `json:"placeholder"`
	Label          string  `json:"label"`
	Required       bool    `json:"required"`
	Type           string  `json:"type"`
}

// FormsUpdate is pushed to subscribers after a mutation-driven rescan.
type FormsUpdate struct {
	Type       string    `json:"type"`
	ScanID     string    `json:"scanId"`
	Forms      []Form    `json:"forms"`
	FormsCount int       `json:"formsCount"`
	Timestamp  time.Time `json:"timestamp"`
}

// -- Field Mappings --

// FieldDescriptor describes a field by its signals alone, without a page.
type FieldDescriptor struct {
	Name        string `json:"name"`
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	ClassName   string `json:"className,omitempty"`
	AriaLabel   string `json:"ariaLabel,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// FieldMapping pairs a described field with the profile value it would receive.
type FieldMapping struct {
	FieldName      string `json:"fieldName"`
	Classification string `json:"classification"`
	CVPath         string `json:"cvPath"`
	Value          string `json:"value"`
}
