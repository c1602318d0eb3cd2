package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/taskquest/models"
	"github.com/cppla/taskquest/services"
	"github.com/cppla/taskquest/store"
	"github.com/cppla/taskquest/utils"
)

// TaskController serves task and subtask CRUD. Every change that moves points goes through the engine.
type TaskController struct {
	store  store.Store
	engine *services.Engine
}

// NewTaskController creates a new TaskController instance.
func NewTaskController(st store.Store, engine *services.Engine) *TaskController {
	return &TaskController{store: st, engine: engine}
}

type taskRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Priority    string   `json:"priority"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

type completeRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

func validPriority(p string) bool {
	return p == models.PriorityHigh || p == models.PriorityMedium || p == models.PriorityLow
}

// normalizePriority accepts any casing and defaults to Medium.
func normalizePriority(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.PriorityMedium, true
	}
	p := strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:])
	return p, validPriority(p)
}

// bind validates a task payload into t. It answers 400 and reports false on bad input.
func (t *TaskController) bind(ctx *gin.Context, req taskRequest, out *models.Task) bool {
	title := truncateRunes(utils.SanitizeText(req.Title), 255)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40020, "title is required")
		return false
	}
	if strings.TrimSpace(req.Date) == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "date is required")
		return false
	}
	date, err := parseDate(req.Date, t.engine.Location())
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid date")
		return false
	}
	priority, ok := normalizePriority(req.Priority)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "priority must be High, Medium or Low")
		return false
	}

	tags := make([]string, 0, len(req.Tags))
	for _, tag := range req.Tags {
		tags = append(tags, utils.SplitTags(tag)...)
	}

	out.Title = title
	out.Description = utils.Sanitize(strings.TrimSpace(req.Description))
	out.Date = date
	out.Priority = priority
	out.Category = truncateRunes(utils.SanitizeText(req.Category), 64)
	out.Tags = truncateRunes(strings.Join(tags, ","), 512)
	return true
}

// ListTasks returns the user's tasks filtered by search, status, priority, category and date range.
func (t *TaskController) ListTasks(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}

	f := store.TaskFilter{
		Search:   ctx.Query("search"),
		Category: ctx.Query("category"),
		SortBy:   ctx.DefaultQuery("sort", store.SortByDate),
		Desc:     strings.EqualFold(ctx.Query("order"), "desc"),
	}
	switch status := ctx.Query("status"); status {
	case store.StatusAll, store.StatusCompleted, store.StatusPending:
		f.Status = status
	default:
		utils.Error(ctx, http.StatusBadRequest, 40023, "status must be completed or pending")
		return
	}
	if raw := ctx.Query("priority"); raw != "" {
		p, ok := normalizePriority(raw)
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40022, "priority must be High, Medium or Low")
			return
		}
		f.Priority = p
	}
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := ctx.Query(bound.key)
		if raw == "" {
			continue
		}
		v, err := parseDate(raw, t.engine.Location())
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40024, "invalid "+bound.key)
			return
		}
		*bound.dst = &v
	}

	tasks, err := t.store.ListTasks(ctx.Request.Context(), userID, f)
	if err != nil {
		storeError(ctx, err, 50020, "failed to list tasks")
		return
	}
	utils.Success(ctx, gin.H{"items": tasks, "total": len(tasks)})
}

// GetTask returns one task with its subtasks.
func (t *TaskController) GetTask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	task, err := t.store.GetTask(ctx.Request.Context(), userID, id)
	if err != nil {
		storeError(ctx, err, 50021, "failed to load task")
		return
	}
	utils.Success(ctx, task)
}

// CreateTask stores a task and grants the creation reward.
func (t *TaskController) CreateTask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	var req taskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	var task models.Task
	if !t.bind(ctx, req, &task) {
		return
	}

	created, res, err := t.engine.CreateTask(ctx.Request.Context(), userID, task)
	if err != nil {
		storeError(ctx, err, 50022, "failed to create task")
		return
	}
	utils.Created(ctx, gin.H{"task": created, "points": res})
}

// UpdateTask edits the task's fields. Completion is changed through CompleteTask only.
func (t *TaskController) UpdateTask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req taskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	task := models.Task{ID: id}
	if !t.bind(ctx, req, &task) {
		return
	}

	updated, err := t.store.UpdateTask(ctx.Request.Context(), userID, task)
	if err != nil {
		storeError(ctx, err, 50023, "failed to update task")
		return
	}
	// a moved date can change which tasks count for today
	if _, err := t.engine.Reconcile(ctx.Request.Context(), userID); err != nil {
		utils.Sugar.Warnf("reconcile after task update failed: %v", err)
	}
	utils.Success(ctx, updated)
}

// DeleteTask removes the task and its subtasks, applying the deletion penalty.
func (t *TaskController) DeleteTask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}

	res, err := t.engine.DeleteTask(ctx.Request.Context(), userID, id)
	if err != nil {
		storeError(ctx, err, 50024, "failed to delete task")
		return
	}
	utils.Success(ctx, gin.H{"points": res})
}

// CompleteTask toggles completion and applies the point delta.
func (t *TaskController) CompleteTask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req completeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "completed is required")
		return
	}

	res, err := t.engine.CompleteTask(ctx.Request.Context(), userID, id, *req.Completed)
	if err != nil {
		storeError(ctx, err, 50025, "failed to update completion")
		return
	}
	utils.Success(ctx, gin.H{"completed": *req.Completed, "points": res})
}

type subtaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Priority    string `json:"priority"`
}

func (t *TaskController) bindSubtask(ctx *gin.Context, req subtaskRequest, out *models.Subtask) bool {
	title := truncateRunes(utils.SanitizeText(req.Title), 255)
	if title == "" {
		utils.Error(ctx, http.StatusBadRequest, 40020, "title is required")
		return false
	}
	if strings.TrimSpace(req.Date) != "" {
		date, err := parseDate(req.Date, t.engine.Location())
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40021, "invalid date")
			return false
		}
		out.Date = date
	}
	priority, ok := normalizePriority(req.Priority)
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40022, "priority must be High, Medium or Low")
		return false
	}
	out.Title = title
	out.Description = utils.Sanitize(strings.TrimSpace(req.Description))
	out.Priority = priority
	return true
}

// CreateSubtask adds a subtask under the task in the path.
func (t *TaskController) CreateSubtask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	taskID, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req subtaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	sub := models.Subtask{TaskID: taskID}
	if !t.bindSubtask(ctx, req, &sub) {
		return
	}
	if sub.Date.IsZero() {
		sub.Date = t.engine.Now()
	}

	created, err := t.engine.CreateSubtask(ctx.Request.Context(), userID, sub)
	if err != nil {
		storeError(ctx, err, 50026, "failed to create subtask")
		return
	}
	utils.Created(ctx, created)
}

// GetSubtask returns one subtask.
func (t *TaskController) GetSubtask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	sub, err := t.store.GetSubtask(ctx.Request.Context(), userID, id)
	if err != nil {
		storeError(ctx, err, 50027, "failed to load subtask")
		return
	}
	utils.Success(ctx, sub)
}

// UpdateSubtask edits a subtask's fields.
func (t *TaskController) UpdateSubtask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req subtaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}
	existing, err := t.store.GetSubtask(ctx.Request.Context(), userID, id)
	if err != nil {
		storeError(ctx, err, 50027, "failed to load subtask")
		return
	}
	if !t.bindSubtask(ctx, req, &existing) {
		return
	}

	updated, err := t.store.UpdateSubtask(ctx.Request.Context(), userID, existing)
	if err != nil {
		storeError(ctx, err, 50028, "failed to update subtask")
		return
	}
	utils.Success(ctx, updated)
}

// DeleteSubtask removes a subtask and applies the subtask penalty.
func (t *TaskController) DeleteSubtask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	res, err := t.engine.DeleteSubtask(ctx.Request.Context(), userID, id)
	if err != nil {
		storeError(ctx, err, 50029, "failed to delete subtask")
		return
	}
	utils.Success(ctx, gin.H{"points": res})
}

// CompleteSubtask toggles a subtask for the flat subtask reward.
func (t *TaskController) CompleteSubtask(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	id, ok := idParam(ctx, "id")
	if !ok {
		return
	}
	var req completeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40025, "completed is required")
		return
	}

	res, err := t.engine.CompleteSubtask(ctx.Request.Context(), userID, id, *req.Completed)
	if err != nil {
		storeError(ctx, err, 50025, "failed to update completion")
		return
	}
	utils.Success(ctx, gin.H{"completed": *req.Completed, "points": res})
}
