package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HTTPErrorResponse is the JSON body written for a failed request.
type HTTPErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// NewErrorResponse converts err into a response body. Classified errors
// expose their message, category and context.
func NewErrorResponse(err error) HTTPErrorResponse {
	if err == nil {
		return HTTPErrorResponse{}
	}
	ce, ok := AsClassified(err)
	if !ok {
		return HTTPErrorResponse{Error: err.Error()}
	}
	resp := HTTPErrorResponse{Error: ce.message, Code: string(ce.category)}
	if len(ce.fields) > 0 {
		resp.Details = ce.fields
	}
	return resp
}

// HTTPErrorAdapter writes errors as JSON responses.
type HTTPErrorAdapter struct {
	logger *slog.Logger
}

// NewHTTPErrorAdapter returns an adapter logging to logger, or to
// slog.Default() when logger is nil.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// WriteErrorResponse writes err with the status HTTPStatus picks and logs
// it at the level its severity calls for.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	status := HTTPStatus(err)
	body, jerr := json.Marshal(NewErrorResponse(err))
	if jerr != nil {
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)

	level := slog.LevelError
	if ce, ok := AsClassified(err); ok {
		level = levelFor(ce.severity)
	}
	a.logger.LogAttrs(r.Context(), level, err.Error(), slog.Int("status", status), slog.String("path", r.URL.Path))
}
