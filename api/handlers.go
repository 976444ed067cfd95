package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/identity"
	"boardsync/store"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, sessions *SessionManager, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.GET("/api/board", getBoard(sessions, auth, logger))
	e.GET("/api/tasks", getTasks(sessions, auth))
	e.POST("/api/tasks", postTask(sessions, auth, deduper))
	e.PATCH("/api/tasks/:id", patchTask(sessions, auth, deduper))
	e.POST("/api/tasks/:id/toggle", toggleTask(sessions, auth, deduper))
	e.POST("/api/tasks/:id/move", moveTask(sessions, auth, deduper))
	e.POST("/api/tasks/reorder", reorderTasks(sessions, auth, deduper))
	e.POST("/api/tasks/restore", restoreTasks(sessions, auth, deduper))
	e.DELETE("/api/tasks/completed", clearCompleted(sessions, auth, deduper))
	e.DELETE("/api/tasks/:id", deleteTask(sessions, auth, deduper))

	e.GET("/api/categories", getCategories(sessions, auth))
	e.POST("/api/categories", postCategory(sessions, auth, deduper))
	e.PATCH("/api/categories/:id", patchCategory(sessions, auth, deduper))
	e.DELETE("/api/categories/:id", deleteCategory(sessions, auth, deduper))
	e.POST("/api/categories/restore", restoreCategory(sessions, auth, deduper))

	e.GET("/api/stats", getStats(sessions, auth))
	e.GET("/api/stream", streamBoard(sessions, auth))
	e.POST("/api/session/end", endSession(sessions, auth))
	e.GET("/healthz", healthz())
}

type statsResponse struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type mutationResponse struct {
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// resolveStore authenticates the request and returns the caller's session
// store. On failure the response has already been written.
func resolveStore(c echo.Context, sessions *SessionManager, auth Authenticator) (*store.Store, identity.User, bool) {
	user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		_ = c.String(http.StatusUnauthorized, err.Error())
		return nil, identity.User{}, false
	}
	s, err := sessions.StoreFor(c.Request().Context(), user)
	if err != nil {
		c.Logger().Error(err)
		_ = c.String(http.StatusBadGateway, "task store unavailable")
		return nil, identity.User{}, false
	}
	return s, user, true
}

// dedupe enforces the Idempotency-Key header when a deduper is configured. A
// missing header gets a generated key so the client can safely re-send. When
// the key was already seen, the duplicate response has been written and
// proceed is false.
func dedupe(c echo.Context, deduper Deduper, userID string) (key string, proceed bool) {
	key = strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if key == "" {
		key = uuid.NewString()
	}
	if deduper == nil {
		return key, true
	}
	fresh, err := deduper.Add(c.Request().Context(), userID, key)
	if err != nil {
		// Dedupe is best effort: a broken Redis must not block mutations.
		c.Logger().Warnf("idempotency check failed: %v", err)
		return key, true
	}
	if !fresh {
		_ = c.JSON(http.StatusOK, mutationResponse{IdempotencyKey: key, Duplicate: true})
		return key, false
	}
	return key, true
}

// reject releases the idempotency key of a mutation that was turned away
// after dedupe, so the client can retry with the same key.
func reject(c echo.Context, deduper Deduper, userID, key string, status int, msg string) error {
	if deduper != nil {
		if err := deduper.Remove(c.Request().Context(), userID, key); err != nil {
			c.Logger().Warnf("idempotency release failed: %v", err)
		}
	}
	return c.String(status, msg)
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func accepted(c echo.Context, key string) error {
	return c.JSON(http.StatusAccepted, mutationResponse{IdempotencyKey: key})
}

func getBoard(sessions *SessionManager, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		c.SetRequest(c.Request().WithContext(spanCtx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		user, authErr := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		s, storeErr := sessions.StoreFor(spanCtx, user)
		if storeErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(storeErr)
			err = c.String(http.StatusBadGateway, "task store unavailable")
			return err
		}

		buildStart := time.Now()
		board := s.BoardTasks()
		metrics.ObserveBuild(time.Since(buildStart))
		metrics.SetBucketSizes(len(board.Overdue), len(board.Todo), len(board.Done))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, board)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTasks(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, _, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		tasks := domain.Visible(
			s.Tasks(),
			domain.Filter(c.QueryParam("filter")),
			domain.SortOption(c.QueryParam("sort")),
			c.QueryParam("q"),
		)
		return c.JSON(http.StatusOK, tasks)
	}
}

type addTaskRequest struct {
	Title      string          `json:"title"`
	Priority   domain.Priority `json:"priority,omitempty"`
	CategoryID string          `json:"categoryId,omitempty"`
	DueDate    string          `json:"dueDate,omitempty"`
	ListID     domain.ListID   `json:"listId,omitempty"`
}

func postTask(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}

		draft := store.Draft{
			Title:      req.Title,
			Priority:   req.Priority,
			CategoryID: req.CategoryID,
			DueDate:    req.DueDate,
		}
		var err error
		if req.ListID != "" {
			err = s.AddTaskToList(c.Request().Context(), draft, req.ListID)
		} else {
			err = s.AddTask(c.Request().Context(), draft)
		}
		if err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to add task")
		}
		return accepted(c, key)
	}
}

func patchTask(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var updates domain.TaskUpdate
		if err := decodeBody(c, &updates); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if updates.Empty() {
			return c.String(http.StatusBadRequest, "empty update")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.EditTask(c.Request().Context(), c.Param("id"), updates); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to edit task")
		}
		return accepted(c, key)
	}
}

func toggleTask(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.ToggleTask(c.Request().Context(), c.Param("id")); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to toggle task")
		}
		return accepted(c, key)
	}
}

type moveTaskRequest struct {
	ListID   domain.ListID `json:"listId"`
	Position int           `json:"position"`
}

func moveTask(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ListID == "" {
			return c.String(http.StatusBadRequest, "listId is required")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.MoveTaskToList(c.Request().Context(), c.Param("id"), req.ListID, req.Position); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to move task")
		}
		return accepted(c, key)
	}
}

type reorderRequest struct {
	ActiveID string `json:"activeId"`
	OverID   string `json:"overId"`
}

func reorderTasks(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.ActiveID == "" || req.OverID == "" {
			return c.String(http.StatusBadRequest, "activeId and overId are required")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.ReorderTasks(c.Request().Context(), req.ActiveID, req.OverID); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to reorder tasks")
		}
		return accepted(c, key)
	}
}

func deleteTask(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		removed, found := s.DeleteTask(c.Request().Context(), c.Param("id"))
		if !found {
			return reject(c, deduper, user.ID, key, http.StatusNotFound, "task not found")
		}
		// The removed entity is the undo payload for /api/tasks/restore.
		return c.JSON(http.StatusOK, removed)
	}
}

func clearCompleted(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		if _, proceed := dedupe(c, deduper, user.ID); !proceed {
			return nil
		}
		cleared := s.ClearCompleted(c.Request().Context())
		if cleared == nil {
			cleared = []domain.Task{}
		}
		return c.JSON(http.StatusOK, cleared)
	}
}

func restoreTasks(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var tasks []domain.Task
		if err := decodeBody(c, &tasks); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(tasks) == 0 {
			return c.String(http.StatusBadRequest, "nothing to restore")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.RestoreTasks(c.Request().Context(), tasks); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to restore tasks")
		}
		return accepted(c, key)
	}
}

func getCategories(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, _, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		return c.JSON(http.StatusOK, s.Categories())
	}
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func postCategory(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var req categoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			return c.String(http.StatusBadRequest, "name is required")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.AddCategory(c.Request().Context(), req.Name, req.Color); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to add category")
		}
		return accepted(c, key)
	}
}

func patchCategory(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var req categoryRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.EditCategory(c.Request().Context(), c.Param("id"), req.Name, req.Color); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to edit category")
		}
		return accepted(c, key)
	}
}

func deleteCategory(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		removed, found := s.DeleteCategory(c.Request().Context(), c.Param("id"))
		if !found {
			return reject(c, deduper, user.ID, key, http.StatusNotFound, "category not found")
		}
		return c.JSON(http.StatusOK, removed)
	}
}

func restoreCategory(sessions *SessionManager, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, user, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		var cat domain.Category
		if err := decodeBody(c, &cat); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if cat.Name == "" {
			return c.String(http.StatusBadRequest, "name is required")
		}
		key, proceed := dedupe(c, deduper, user.ID)
		if !proceed {
			return nil
		}
		if err := s.RestoreCategory(c.Request().Context(), cat); err != nil {
			c.Logger().Error(err)
			return reject(c, deduper, user.ID, key, http.StatusInternalServerError, "failed to restore category")
		}
		return accepted(c, key)
	}
}

func getStats(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, _, ok := resolveStore(c, sessions, auth)
		if !ok {
			return nil
		}
		active := s.ActiveCount()
		completed := s.CompletedCount()
		return c.JSON(http.StatusOK, statsResponse{
			Active:    active,
			Completed: completed,
			Total:     active + completed,
		})
	}
}

func endSession(sessions *SessionManager, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := auth.UserFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		sessions.End(user.ID)
		return c.NoContent(http.StatusNoContent)
	}
}
