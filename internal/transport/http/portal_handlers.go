package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VRMX2/USTHB-APP/internal/core"
	"github.com/VRMX2/USTHB-APP/internal/service/notify"
	"github.com/VRMX2/USTHB-APP/internal/store"
)

const defaultHistoryLimit = 50

// PortalHandlers provides HTTP handlers for presence, history and staff
// notification endpoints.
type PortalHandlers struct {
	hub      *core.Hub
	notifier *notify.Service
	resolver *core.Resolver
	store    store.Store
	log      *zerolog.Logger
}

// NewPortalHandlers creates a new portal handlers instance.
func NewPortalHandlers(hub *core.Hub, notifier *notify.Service, resolver *core.Resolver, st store.Store, logger *zerolog.Logger) *PortalHandlers {
	return &PortalHandlers{
		hub:      hub,
		notifier: notifier,
		resolver: resolver,
		store:    st,
		log:      logger,
	}
}

// PresenceResponse reports one user's live status.
type PresenceResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// MessageResponse represents a stored chat message in API responses.
type MessageResponse struct {
	ID      int64  `json:"id"`
	Channel string `json:"channel"`
	UserID  int64  `json:"user_id"`
	Text    string `json:"text"`
	TS      int64  `json:"ts"`
}

// AnnouncementRequest represents the announcement publication body.
type AnnouncementRequest struct {
	Title      string `json:"title" binding:"required,min=1,max=200"`
	Body       string `json:"body" binding:"required"`
	Department string `json:"department"`
}

// AnnouncementResponse represents an announcement in API responses.
type AnnouncementResponse struct {
	ID         int64  `json:"id"`
	AuthorID   int64  `json:"author_id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	Department string `json:"department,omitempty"`
	TS         int64  `json:"ts"`
}

// GradeRequest represents the grade posting body.
type GradeRequest struct {
	StudentID int64   `json:"student_id" binding:"required"`
	Label     string  `json:"label" binding:"required,min=1,max=100"`
	Value     float64 `json:"value"`
}

// GradeResponse represents a grade in API responses.
type GradeResponse struct {
	ID       int64   `json:"id"`
	CourseID int64   `json:"course_id"`
	Label    string  `json:"label"`
	Value    float64 `json:"value"`
	TS       int64   `json:"ts"`
}

// Presence reports the live status of one user.
// GET /api/presence/:id
func (h *PortalHandlers) Presence(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	rec := h.hub.PresenceSnapshot(userID)
	resp := PresenceResponse{
		UserID:   userID,
		Username: rec.Username,
		Status:   string(rec.Status),
	}
	if !rec.LastSeen.IsZero() {
		resp.LastSeen = rec.LastSeen.Unix()
	}
	c.JSON(http.StatusOK, resp)
}

// ChannelMessages returns recent chat history for a channel the caller may
// read. Access is re-validated against current membership, exactly as a
// live join would be.
// GET /api/channels/:channel/messages
func (h *PortalHandlers) ChannelMessages(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	target, err := core.ParseChannel(core.ChannelID(c.Param("channel")))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "unknown channel"})
		return
	}

	if _, _, err := h.resolver.AuthorizeJoin(c.Request.Context(), principal, target); err != nil {
		h.respondAccessError(c, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before cursor"})
			return
		}
		beforeID = &parsed
	}

	messages, err := h.store.ListMessages(c.Request.Context(), string(target.ID), limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Str("channel", string(target.ID)).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:      msg.ID,
			Channel: msg.Channel,
			UserID:  msg.UserID,
			Text:    msg.Body,
			TS:      msg.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, response)
}

// ListAnnouncements returns recent announcements visible to the caller's
// department, portal-wide ones included.
// GET /api/announcements
func (h *PortalHandlers) ListAnnouncements(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	announcements, err := h.store.ListAnnouncements(c.Request.Context(), principal.Department, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list announcements")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]AnnouncementResponse, 0, len(announcements))
	for _, a := range announcements {
		response = append(response, AnnouncementResponse{
			ID:         a.ID,
			AuthorID:   a.AuthorID,
			Title:      a.Title,
			Body:       a.Body,
			Department: a.Department,
			TS:         a.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, response)
}

// PostAnnouncement publishes an announcement and fans it out to live
// connections. Teachers default to their own department; only admins can
// leave the department empty for a portal-wide notice.
// POST /api/announcements
func (h *PortalHandlers) PostAnnouncement(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid announcement request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	department := req.Department
	if department == "" && principal.Role == core.RoleTeacher {
		department = principal.Department
	}

	record, err := h.notifier.PublishAnnouncement(c.Request.Context(), principal, req.Title, req.Body, department)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrNotStaff), errors.Is(err, notify.ErrWrongDepartment):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
		case errors.Is(err, notify.ErrEmptyAnnouncement):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Int64("author_id", principal.ID).Msg("failed to publish announcement")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("announcement_id", record.ID).Str("department", department).Msg("announcement published")
	c.JSON(http.StatusCreated, AnnouncementResponse{
		ID:         record.ID,
		AuthorID:   record.AuthorID,
		Title:      record.Title,
		Body:       record.Body,
		Department: record.Department,
		TS:         record.CreatedAt.Unix(),
	})
}

// PostGrade records a grade for a student and pings their devices.
// POST /api/courses/:id/grades
func (h *PortalHandlers) PostGrade(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	courseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || courseID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid course id"})
		return
	}

	var req GradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid grade request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	record, err := h.notifier.RecordGrade(c.Request.Context(), principal, courseID, req.StudentID, req.Label, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, notify.ErrCourseNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		case errors.Is(err, notify.ErrNotCourseTeacher):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
		case errors.Is(err, notify.ErrStudentNotEnrolled):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Int64("course_id", courseID).Msg("failed to record grade")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Int64("grade_id", record.ID).Int64("course_id", courseID).Int64("student_id", req.StudentID).Msg("grade recorded")
	c.JSON(http.StatusCreated, GradeResponse{
		ID:       record.ID,
		CourseID: record.CourseID,
		Label:    record.Label,
		Value:    record.Value,
		TS:       record.CreatedAt.Unix(),
	})
}

// MyGrades returns the caller's own grades, newest first.
// GET /api/grades
func (h *PortalHandlers) MyGrades(c *gin.Context) {
	principal, ok := principalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	grades, err := h.store.ListGrades(c.Request.Context(), principal.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("student_id", principal.ID).Msg("failed to list grades")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]GradeResponse, 0, len(grades))
	for _, g := range grades {
		response = append(response, GradeResponse{
			ID:       g.ID,
			CourseID: g.CourseID,
			Label:    g.Label,
			Value:    g.Value,
			TS:       g.CreatedAt.Unix(),
		})
	}
	c.JSON(http.StatusOK, response)
}

// respondAccessError maps join-style authorization failures onto HTTP codes.
func (h *PortalHandlers) respondAccessError(c *gin.Context, err error) {
	var domain *core.Error
	if errors.As(err, &domain) {
		switch domain.Code {
		case core.ErrCodeForbidden:
			c.JSON(http.StatusForbidden, ErrorResponse{Error: domain.Message})
		case core.ErrCodeNotFound:
			c.JSON(http.StatusNotFound, ErrorResponse{Error: domain.Message})
		default:
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.Message})
		}
		return
	}
	h.log.Error().Err(err).Msg("membership lookup failed")
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "portal store unavailable"})
}
