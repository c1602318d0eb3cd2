package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// PreferenceController reads and writes notification preferences.
type PreferenceController struct {
	store store.Store
}

// NewPreferenceController creates a new PreferenceController instance.
func NewPreferenceController(st store.Store) *PreferenceController {
	return &PreferenceController{store: st}
}

type preferenceRequest struct {
	TaskReminders       *bool `json:"task_reminders"`
	TaskReminderMinutes *int  `json:"task_reminder_minutes"`
	DailySummary        *bool `json:"daily_summary"`
}

// GetPreferences returns the stored preferences, or the defaults.
func (p *PreferenceController) GetPreferences(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	pref, err := p.store.Preference(ctx.Request.Context(), userID)
	if err != nil {
		storeError(ctx, err, 50050, "failed to load preferences")
		return
	}
	utils.Success(ctx, pref)
}

// UpdatePreferences applies the fields present in the body.
func (p *PreferenceController) UpdatePreferences(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	var req preferenceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40050, "invalid request payload")
		return
	}
	maxMinutes := int(services.MaxReminderLead.Minutes())
	if req.TaskReminderMinutes != nil && (*req.TaskReminderMinutes < 0 || *req.TaskReminderMinutes > maxMinutes) {
		utils.Error(ctx, http.StatusBadRequest, 40051, "task_reminder_minutes must be between 0 and 1440")
		return
	}

	pref, err := p.store.Preference(ctx.Request.Context(), userID)
	if err != nil {
		storeError(ctx, err, 50050, "failed to load preferences")
		return
	}
	if req.TaskReminders != nil {
		pref.TaskReminders = *req.TaskReminders
	}
	if req.TaskReminderMinutes != nil {
		pref.TaskReminderMinutes = *req.TaskReminderMinutes
	}
	if req.DailySummary != nil {
		pref.DailySummary = *req.DailySummary
	}
	pref.UserID = userID

	if err := p.store.SavePreference(ctx.Request.Context(), pref); err != nil {
		storeError(ctx, err, 50051, "failed to save preferences")
		return
	}
	utils.Success(ctx, pref)
}
