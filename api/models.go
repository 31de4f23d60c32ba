package api

import (
	"github.com/memtensor/userdesk/pkg/table"
	"github.com/memtensor/userdesk/pkg/users"
)

// BaseResponse represents the base structure for all API responses
type BaseResponse[T any] struct {
	Code    int    `json:"code" example:"200"`
	Message string `json:"message" example:"Operation successful"`
	Data    *T     `json:"data,omitempty"`
}

// SimpleResponse for operations without data return
type SimpleResponse = BaseResponse[interface{}]

// QueryRequest sets the table filter
type QueryRequest struct {
	Query string `json:"query" example:"ann"`
}

// SortRequest clicks a column header
type SortRequest struct {
	Key string `json:"key" binding:"required" example:"name"`
}

// PageRequest navigates between pages. Page is used only with op "goto".
type PageRequest struct {
	Op   string `json:"op" binding:"required,oneof=first prev previous next last goto" example:"next"`
	Page int    `json:"page,omitempty" example:"3"`
}

// PageSizeRequest changes the number of rows per page
type PageSizeRequest struct {
	Size int `json:"size" binding:"min=1" example:"25"`
}

// SelectionRequest changes the row selection
type SelectionRequest struct {
	Action string `json:"action" binding:"required,oneof=toggle select_page toggle_page clear" example:"toggle"`
	ID     string `json:"id,omitempty" binding:"required_if=Action toggle" example:"42"`
}

// BulkDeleteRequest deletes every selected user. ExpectedCount must equal
// the current selection size.
type BulkDeleteRequest struct {
	Confirm       bool `json:"confirm" example:"true"`
	ExpectedCount int  `json:"expected_count" binding:"required,min=1" example:"3"`
}

// BulkDeleteResult reports a bulk delete
type BulkDeleteResult struct {
	Deleted    []string          `json:"deleted"`
	Failed     map[string]string `json:"failed,omitempty"`
	RefreshSeq uint64            `json:"refresh_seq"`
}

// RefreshResult reports an issued refresh
type RefreshResult struct {
	Seq     uint64      `json:"seq"`
	Outcome string      `json:"outcome"`
	View    *table.View `json:"view,omitempty"`
}

// ProfileUpdate carries edited profile fields. Absent fields are left as
// they are.
type ProfileUpdate struct {
	Fields    map[string]string `json:"fields"`
	Interests *[]string         `json:"interests,omitempty"`
}

// ProfileView is the profile editor state
type ProfileView struct {
	User       users.User        `json:"user"`
	Errors     map[string]string `json:"errors"`
	Dirty      bool              `json:"dirty"`
	BioPreview string            `json:"bio_preview"`
}

// LoginRequest signs in
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"ann"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest changes the signed-in user's password
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// SessionInfo describes the signed-in user
type SessionInfo struct {
	User    *users.User `json:"user"`
	IsAdmin bool        `json:"is_admin"`
}

// Response types
type ViewResponse = BaseResponse[table.View]
type ProfileResponse = BaseResponse[ProfileView]
type SessionResponse = BaseResponse[SessionInfo]
type BulkDeleteResponse = BaseResponse[BulkDeleteResult]
type RefreshResponse = BaseResponse[RefreshResult]

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Code      int                    `json:"code"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// MetricsResponse represents metrics response
type MetricsResponse struct {
	Timestamp string      `json:"timestamp"`
	Uptime    string      `json:"uptime"`
	Metrics   interface{} `json:"metrics"`
}
