package errx

// HTTPErrorResponse is the JSON body returned for failed API requests.
type HTTPErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Type      string                 `json:"type"`
	Status    int                    `json:"status"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an Error to an HTTPErrorResponse. The wrapped
// cause is never included.
func (e *Error) ToHTTPResponse(requestID string) HTTPErrorResponse {
	resp := HTTPErrorResponse{
		Error:     e.Message,
		Code:      e.Code,
		Type:      string(e.Type),
		Status:    e.HTTPStatus,
		RequestID: requestID,
	}
	if len(e.Details) > 0 {
		resp.Details = e.Details
	}
	return resp
}
