package model

import "encoding/json"

// ErrorResponse is the standard error body. Extra carries endpoint-specific
// fields (mfaRequired, lockoutUntil, requiredRoles, ...) that are written
// next to code and message rather than nested.
type ErrorResponse struct {
	Code    int
	Message string
	Extra   map[string]interface{}
}

// MarshalJSON flattens Extra into the top-level object. code and message
// always win over Extra keys with the same name.
func (e ErrorResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Extra)+2)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["code"] = e.Code
	out["message"] = e.Message
	return json.Marshal(out)
}

// PageMeta is the pagination envelope shared by the log listing endpoints.
type PageMeta struct {
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int64 `json:"totalPages"`
	CurrentPage int   `json:"currentPage"`
}

// NewPageMeta computes page counts for a total and page size.
func NewPageMeta(total int64, page, limit int) PageMeta {
	pages := int64(0)
	if limit > 0 {
		pages = (total + int64(limit) - 1) / int64(limit)
	}
	return PageMeta{TotalCount: total, TotalPages: pages, CurrentPage: page}
}
