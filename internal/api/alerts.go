package api

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// createAlertRequest is the body of POST /alerts. CapturedImage carries the
// detection frame base64-encoded; the endpoint is JSON, not multipart, so
// this is the compound-operation boundary spec section 4.8 describes —
// the image is written to the capture store before the alert row commits.
type createAlertRequest struct {
	AlertType        string  `json:"alert_type" validate:"required,oneof=missing_person_match loyalty_match"`
	DeviceID         string  `json:"device_id" validate:"required"`
	TenantID         string  `json:"tenant_id,omitempty"`
	Confidence       float64 `json:"confidence" validate:"gte=0,lte=1"`
	DetectedAt       string  `json:"detected_at" validate:"required"`
	CaseRef          string  `json:"case_ref,omitempty"`
	MemberRef        string  `json:"member_ref,omitempty"`
	CapturedImage    string  `json:"captured_image,omitempty"`
	CapturedImageExt string  `json:"captured_image_ext,omitempty"`
}

type alertResponse struct {
	ID            string  `json:"id"`
	TenantID      *string `json:"tenant_id,omitempty"`
	DeviceID      string  `json:"device_id"`
	Type          string  `json:"alert_type"`
	SubjectKind   string  `json:"subject_kind"`
	SubjectRef    string  `json:"subject_ref"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	MatchedAt     string  `json:"matched_at"`
	ReviewedBy    *string `json:"reviewed_by,omitempty"`
	ReviewedAt    *string `json:"reviewed_at,omitempty"`
	DismissReason *string `json:"dismiss_reason,omitempty"`
	HasImage      bool    `json:"has_image"`
}

func toAlertResponse(a *models.Alert) alertResponse {
	resp := alertResponse{
		ID:            a.ID,
		TenantID:      a.TenantID,
		DeviceID:      a.DeviceID,
		Type:          string(a.Type),
		SubjectKind:   string(a.Subject.Kind),
		SubjectRef:    a.Subject.Ref,
		Status:        string(a.Status),
		Confidence:    a.Confidence,
		MatchedAt:     a.MatchedAt.Format(time.RFC3339),
		ReviewedBy:    a.ReviewedBy,
		DismissReason: a.DismissReason,
		HasImage:      a.CapturedImagePath != nil,
	}
	if a.ReviewedAt != nil {
		s := a.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}
	return resp
}

type createAlertResponse struct {
	Alert         alertResponse         `json:"alert"`
	Notifications notificationsOutcome  `json:"notifications"`
}

type notificationsOutcome struct {
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Scheduled int `json:"scheduled"`
}

// CreateAlert handles POST /alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	detectedAt, err := time.Parse(time.RFC3339, req.DetectedAt)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.KindInvalidInput, "detected_at must be RFC3339", err))
		return
	}

	alertType := models.AlertType(req.AlertType)
	subject := models.AlertSubject{}
	switch alertType {
	case models.AlertTypeMissingPersonMatch:
		subject = models.AlertSubject{Kind: models.AlertSubjectMissingPerson, Ref: req.CaseRef}
	case models.AlertTypeLoyaltyMatch:
		subject = models.AlertSubject{Kind: models.AlertSubjectLoyaltyMember, Ref: req.MemberRef}
	}

	a := &models.Alert{
		DeviceID:   req.DeviceID,
		Type:       alertType,
		Subject:    subject,
		Confidence: req.Confidence,
		MatchedAt:  detectedAt,
		Status:     models.AlertStatusNew,
	}
	if req.TenantID != "" {
		a.TenantID = &req.TenantID
	}

	var imageData []byte
	if req.CapturedImage != "" {
		imageData, err = base64.StdEncoding.DecodeString(req.CapturedImage)
		if err != nil {
			respondError(w, apierr.Wrap(apierr.KindInvalidImage, "captured_image is not valid base64", err))
			return
		}
	}

	created, dispatched, err := h.alerts.Ingest(r.Context(), a, imageData, req.CapturedImageExt)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, createAlertResponse{
		Alert: toAlertResponse(created),
		Notifications: notificationsOutcome{
			Sent:      dispatched.Sent,
			Failed:    dispatched.Failed,
			Scheduled: dispatched.Scheduled,
		},
	})
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := database.AlertFilter{
		TenantID: q.Get("tenant_id"),
		Page:     getIntParam(r, "page", 1),
		PerPage:  getIntParam(r, "per_page", 50),
	}
	if status := q.Get("status"); status != "" {
		filter.Status = models.AlertStatus(status)
	}
	if t := q.Get("type"); t != "" {
		filter.Type = models.AlertType(t)
	}
	if since := q.Get("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, apierr.Wrap(apierr.KindInvalidInput, "since must be RFC3339", err))
			return
		}
		filter.Since = &parsed
	}

	alerts, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	respondJSON(w, http.StatusOK, struct {
		Alerts []alertResponse `json:"alerts"`
		Page   int             `json:"page"`
	}{Alerts: out, Page: filter.Page})
}

type reviewAlertRequest struct {
	Status        string  `json:"status" validate:"required"`
	Reviewer      string  `json:"reviewer" validate:"required"`
	Notes         string  `json:"notes,omitempty"`
	DismissReason *string `json:"dismiss_reason,omitempty"`
}

// ReviewAlert handles PUT /alerts/{id}/review.
func (h *Handler) ReviewAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	var req reviewAlertRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.alerts.Review(r.Context(), alertID, req.Reviewer, models.AlertStatus(req.Status), req.DismissReason); err != nil {
		respondError(w, err)
		return
	}

	a, err := h.alerts.Get(r.Context(), alertID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAlertResponse(a))
}

// AlertImage handles GET /alerts/{id}/image.
func (h *Handler) AlertImage(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	f, err := h.alerts.OpenCapture(r.Context(), alertID)
	if err != nil {
		respondError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(w, r, "", time.Time{}, f)
}

type retryNotificationsResponse struct {
	Retried notificationsOutcome `json:"retried"`
}

// RetryAlertNotifications handles POST /alerts/{id}/notifications/retry.
func (h *Handler) RetryAlertNotifications(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	sent, failed, err := h.notifier.RetryAlert(r.Context(), alertID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, retryNotificationsResponse{
		Retried: notificationsOutcome{Sent: sent, Failed: failed},
	})
}
