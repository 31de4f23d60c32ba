package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/table"
	"github.com/memtensor/userdesk/pkg/types"
	"github.com/memtensor/userdesk/pkg/users"
)

// healthCheck runs the registered checks
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := map[string]string{}
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			checks[name] = "failing"
			status, code = "degraded", http.StatusServiceUnavailable
			s.logger.Warn("health check failed", map[string]interface{}{"check": name, "error": err.Error()})
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Checks:    checks,
	})
}

// getView returns the current table view
func (s *Server) getView(c *gin.Context) {
	s.respondView(c, "ok")
}

func (s *Server) respondView(c *gin.Context, message string) {
	view := s.view.View()
	c.JSON(http.StatusOK, ViewResponse{Code: http.StatusOK, Message: message, Data: &view})
}

// transition applies one view event and returns the resulting view
func (s *Server) transition(c *gin.Context, apply func() error) {
	if err := apply(); err != nil {
		s.handleError(c, "View update rejected", err)
		return
	}
	s.respondView(c, "ok")
}

func (s *Server) setQuery(c *gin.Context) {
	var req QueryRequest
	if !s.bind(c, &req) {
		return
	}
	s.transition(c, func() error { return s.view.SetQuery(req.Query) })
}

func (s *Server) clickSort(c *gin.Context) {
	var req SortRequest
	if !s.bind(c, &req) {
		return
	}
	s.transition(c, func() error { return s.view.ClickSort(req.Key) })
}

func (s *Server) navigate(c *gin.Context) {
	var req PageRequest
	if !s.bind(c, &req) {
		return
	}
	op, _ := table.ParseNavOp(req.Op)
	s.transition(c, func() error { return s.view.Navigate(op, req.Page) })
}

func (s *Server) setPageSize(c *gin.Context) {
	var req PageSizeRequest
	if !s.bind(c, &req) {
		return
	}
	s.transition(c, func() error { return s.view.SetPageSize(req.Size) })
}

func (s *Server) changeSelection(c *gin.Context) {
	var req SelectionRequest
	if !s.bind(c, &req) {
		return
	}
	s.transition(c, func() error {
		switch req.Action {
		case "toggle":
			return s.view.ToggleRow(req.ID)
		case "select_page":
			return s.view.SelectPage()
		case "toggle_page":
			return s.view.TogglePage()
		default:
			return s.view.DeselectAll()
		}
	})
}

// refresh issues a refresh. With ?wait=true it waits for the outcome and
// includes the resulting view.
func (s *Server) refresh(c *gin.Context) {
	pending := s.view.Refresh(context.WithoutCancel(c.Request.Context()))
	result := RefreshResult{Seq: pending.Seq, Outcome: table.RefreshPending.String()}

	if c.Query("wait") == "true" {
		outcome, _ := pending.Wait(c.Request.Context())
		result.Outcome = outcome.String()
		view := s.view.View()
		result.View = &view
	}
	c.JSON(http.StatusAccepted, RefreshResponse{Code: http.StatusAccepted, Message: "refresh issued", Data: &result})
}

// getSelected returns the selected records in store order
func (s *Server) getSelected(c *gin.Context) {
	selected := s.view.Selected()
	c.JSON(http.StatusOK, BaseResponse[[]types.Record]{Code: http.StatusOK, Message: "ok", Data: &selected})
}

// bulkDelete deletes the selected users after the caller confirms the
// number of users they expect to delete
func (s *Server) bulkDelete(c *gin.Context) {
	var req BulkDeleteRequest
	if !s.bind(c, &req) {
		return
	}
	if !req.Confirm {
		s.handleError(c, "Bulk delete not confirmed", errors.NewValidationError("bulk delete must be confirmed"))
		return
	}
	selected := s.view.Selected()
	if len(selected) != req.ExpectedCount {
		s.handleError(c, "Selection changed", errors.NewConflictError("selection does not match the confirmed count").
			WithDetail("selected", len(selected)).WithDetail("expected", req.ExpectedCount))
		return
	}

	ctx := c.Request.Context()
	result := BulkDeleteResult{Deleted: []string{}, Failed: map[string]string{}}
	for _, rec := range selected {
		id := rec.ID()
		if err := s.users.DeleteUser(ctx, id); err != nil {
			result.Failed[id] = publicMessage(err)
			s.logger.Error("Failed to delete user", err, map[string]interface{}{"user_id": id})
			continue
		}
		result.Deleted = append(result.Deleted, id)
		s.dropEditor(id)
	}
	s.metrics.Counter("users_deleted_total", float64(len(result.Deleted)), nil)

	result.RefreshSeq = s.view.Refresh(context.WithoutCancel(ctx)).Seq
	s.logger.Info("Bulk delete", map[string]interface{}{
		"deleted": len(result.Deleted),
		"failed":  len(result.Failed),
	})

	c.JSON(http.StatusOK, BulkDeleteResponse{
		Code:    http.StatusOK,
		Message: fmt.Sprintf("Deleted %d of %d users", len(result.Deleted), len(selected)),
		Data:    &result,
	})
}

// editor returns the cached profile editor for id
func (s *Server) editor(id string) *users.ProfileEditor {
	s.editorsMu.Lock()
	defer s.editorsMu.Unlock()
	e, ok := s.editors[id]
	if !ok {
		e = users.NewProfileEditor(s.users, id)
		s.editors[id] = e
	}
	return e
}

func (s *Server) dropEditor(id string) {
	s.editorsMu.Lock()
	defer s.editorsMu.Unlock()
	delete(s.editors, id)
}

func (s *Server) dropEditors() {
	s.editorsMu.Lock()
	defer s.editorsMu.Unlock()
	s.editors = map[string]*users.ProfileEditor{}
}

func (s *Server) respondProfile(c *gin.Context, e *users.ProfileEditor, message string) {
	draft, err := e.Draft()
	if err != nil {
		s.handleError(c, "Profile unavailable", err)
		return
	}
	preview, err := e.BioPreview()
	if err != nil {
		s.logger.Warn("bio preview failed", map[string]interface{}{"user_id": e.ID(), "error": err.Error()})
	}
	c.JSON(http.StatusOK, ProfileResponse{Code: http.StatusOK, Message: message, Data: &ProfileView{
		User:       draft,
		Errors:     e.Errors(),
		Dirty:      e.Dirty(),
		BioPreview: preview,
	}})
}

func (s *Server) getProfile(c *gin.Context) {
	e := s.editor(c.Param("id"))
	if err := e.Load(c.Request.Context()); err != nil {
		s.dropEditor(e.ID())
		s.handleError(c, "Failed to load profile", err)
		return
	}
	s.respondProfile(c, e, "ok")
}

func (s *Server) reloadProfile(c *gin.Context) {
	e := s.editor(c.Param("id"))
	if err := e.Reload(c.Request.Context()); err != nil {
		s.handleError(c, "Failed to load profile", err)
		return
	}
	s.respondProfile(c, e, "reloaded")
}

// updateProfile applies edited fields and submits the changes
func (s *Server) updateProfile(c *gin.Context) {
	var req ProfileUpdate
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	e := s.editor(c.Param("id"))
	if err := e.Load(ctx); err != nil {
		s.dropEditor(e.ID())
		s.handleError(c, "Failed to load profile", err)
		return
	}

	fields := make([]string, 0, len(req.Fields))
	for f := range req.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if err := e.SetField(f, req.Fields[f]); err != nil {
			s.handleError(c, "Invalid profile field", err)
			return
		}
	}
	if req.Interests != nil {
		if err := e.SetInterests(*req.Interests); err != nil {
			s.handleError(c, "Invalid interests", err)
			return
		}
	}

	changed := e.Dirty()
	if _, err := e.Submit(ctx); err != nil {
		s.handleError(c, "Failed to update profile", err)
		return
	}
	if changed {
		s.view.Refresh(context.WithoutCancel(ctx))
	}
	s.respondProfile(c, e, "saved")
}

// login signs in and loads the user table
func (s *Server) login(c *gin.Context) {
	var req LoginRequest
	if !s.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	user, err := s.sessions.Login(ctx, req.Username, req.Password)
	if err != nil {
		s.handleError(c, "Login failed", err)
		return
	}
	s.dropEditors()
	s.view.Refresh(context.WithoutCancel(ctx))
	c.JSON(http.StatusOK, SessionResponse{Code: http.StatusOK, Message: "signed in", Data: &SessionInfo{
		User:    user,
		IsAdmin: s.sessions.IsAdmin(ctx),
	}})
}

// logout ends the session and empties the table
func (s *Server) logout(c *gin.Context) {
	if err := s.sessions.Logout(c.Request.Context()); err != nil {
		s.handleError(c, "Logout failed", err)
		return
	}
	s.dropEditors()
	if err := s.view.Load(nil); err != nil {
		s.logger.Error("Failed to clear view", err)
	}
	c.JSON(http.StatusOK, SimpleResponse{Code: http.StatusOK, Message: "signed out"})
}

func (s *Server) currentSession(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := s.sessions.CurrentUser(ctx)
	if err != nil {
		s.handleError(c, "Session unavailable", err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Code: http.StatusOK, Message: "ok", Data: &SessionInfo{
		User:    user,
		IsAdmin: s.sessions.IsAdmin(ctx),
	}})
}

func (s *Server) changePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if !s.bind(c, &req) {
		return
	}
	if err := s.sessions.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
		s.handleError(c, "Failed to change password", err)
		return
	}
	c.JSON(http.StatusOK, SimpleResponse{Code: http.StatusOK, Message: "password changed"})
}

// getMetrics returns in-process metrics when they are collected
func (s *Server) getMetrics(c *gin.Context) {
	m, ok := s.metrics.(*metrics.InMemoryMetrics)
	if !ok {
		s.handleError(c, "Metrics unavailable", errors.NewNotFoundError("metrics"))
		return
	}
	c.JSON(http.StatusOK, MetricsResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Metrics:   m.Snapshot(),
	})
}

// bind decodes the JSON body into req and reports bad requests
func (s *Server) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.handleError(c, "Invalid request format", errors.NewInvalidInputError(err.Error()))
		return false
	}
	return true
}

// statusFor maps an error code to an HTTP status
func statusFor(err error) int {
	if _, ok := err.(*errors.ErrorList); ok {
		return http.StatusBadRequest
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeValidation, errors.ErrCodeInvalidInput, errors.ErrCodeMissingField,
		errors.ErrCodeInvalidFormat, errors.ErrCodeInvariantViolation:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized, errors.ErrCodeTokenExpired, errors.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeLockedOut, errors.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case errors.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCodeAPIError, errors.ErrCodeDataFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the part of err that may be shown to the caller
func publicMessage(err error) string {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr.Message
	}
	return "internal error"
}

// handleError logs err and writes the matching error response. Causes
// are logged but never written.
func (s *Server) handleError(c *gin.Context, message string, err error) {
	requestID := c.GetString("request_id")
	status := statusFor(err)

	fields := map[string]interface{}{
		"request_id": requestID,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"status":     status,
	}
	if status >= 500 {
		s.logger.Error(message, err, fields)
	} else {
		s.logger.Debug(message, fields)
	}

	resp := ErrorResponse{
		Code:      status,
		Message:   message,
		Error:     publicMessage(err),
		RequestID: requestID,
	}
	if appErr := errors.GetAppError(err); appErr != nil {
		resp.Details = appErr.Details
		resp.Error = string(appErr.Code) + ": " + appErr.Message
	} else if list, ok := err.(*errors.ErrorList); ok {
		resp.Error = list.Error()
	}
	c.JSON(status, resp)
}
