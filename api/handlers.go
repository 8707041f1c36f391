package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"leaddesk-api/domain"
	"leaddesk-api/identity"
	"leaddesk-api/linking"
	"leaddesk-api/visibility"
	"leaddesk-api/watch"
)

// Deps groups everything the handlers are wired with.
type Deps struct {
	Store      Store
	Auth       Authenticator
	Resolver   *identity.Resolver
	Linker     Linker
	Visibility *visibility.Rule
	Watcher    *watch.Watcher
	Uploader   Uploader
	Extractor  Extractor
	Publisher  Publisher
	Logger     *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.New()
	}

	e.GET("/api/me", getMe(d))
	e.POST("/api/link/request", postLinkRequest(d))
	e.POST("/api/link/approve", postLinkAction(d, "approve"))
	e.POST("/api/link/reject", postLinkAction(d, "reject"))
	e.POST("/api/link/remove", postLinkAction(d, "remove"))
	e.POST("/api/admin/convert", postConvert(d))

	e.GET("/api/tasks", getTasks(d))
	e.POST("/api/tasks", postTask(d))
	e.PATCH("/api/tasks/:id", patchTask(d))
	e.DELETE("/api/tasks/:id", deleteTask(d))
	e.GET("/api/tasks/:id/comments", getComments(d))
	e.POST("/api/tasks/:id/comments", postComment(d))

	e.GET("/api/leads", getLeads(d))
	e.POST("/api/leads", postLead(d))
	e.DELETE("/api/leads/:id", deleteLead(d))

	e.POST("/api/extract", postExtract(d))
	e.POST("/api/photo", postPhoto(d))

	e.GET("/api/stream", streamTasks(d))
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// principal authenticates the request and resolves the account behind it.
func (d Deps) principal(c echo.Context) (domain.Principal, domain.Account, error) {
	userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		return domain.Principal{}, domain.Account{}, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	acc, err := d.Resolver.Resolve(c.Request().Context(), userID)
	if err != nil {
		return domain.Principal{}, domain.Account{}, err
	}
	return identity.Principal(acc), acc, nil
}

// fail maps domain errors onto HTTP responses with a user-visible message.
func fail(c echo.Context, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrInvalidCode):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotApproved), errors.Is(err, domain.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, linking.ErrConflict):
		status = http.StatusConflict
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		c.Logger().Error(err)
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	if err := dec.Decode(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	return nil
}

func getMe(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, acc, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		resp := meResponse{Account: acc}
		if p.Role == domain.RoleManager {
			clients, err := d.Store.LinkedClients(c.Request().Context(), p.ID)
			if err != nil {
				return fail(c, err)
			}
			resp.LinkedClients = clients
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func postLinkRequest(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		var body linkRequestBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Code) == "" {
			return fail(c, &domain.ValidationError{Field: "code", Reason: "required"})
		}
		if err := d.Linker.RequestLink(c.Request().Context(), p.ID, body.Code); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusAccepted)
	}
}

func postLinkAction(d Deps, action string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if p.Role != domain.RoleManager {
			return fail(c, domain.ErrNotAuthorized)
		}
		var body linkActionBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if body.ClientID == "" {
			return fail(c, &domain.ValidationError{Field: "clientId", Reason: "required"})
		}

		ctx := c.Request().Context()
		switch action {
		case "approve":
			err = d.Linker.Approve(ctx, p.ID, body.ClientID)
		case "reject":
			err = d.Linker.Reject(ctx, p.ID, body.ClientID)
		case "remove":
			err = d.Linker.Remove(ctx, p.ID, body.ClientID)
		}
		if err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusOK)
	}
}

func postConvert(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		var body convertBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if body.AccountID == "" {
			return fail(c, &domain.ValidationError{Field: "accountId", Reason: "required"})
		}

		ctx := c.Request().Context()
		switch body.Role {
		case string(domain.RoleClient):
			err = d.Linker.ConvertToClient(ctx, p.ID, body.AccountID)
		case string(domain.RoleManager):
			err = d.Linker.ConvertToManager(ctx, p.ID, body.AccountID)
		default:
			return fail(c, &domain.ValidationError{Field: "role", Reason: "must be manager or client"})
		}
		if err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusOK)
	}
}

func getTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, d.Logger, "/api/tasks")
		c.SetRequest(c.Request().WithContext(spanCtx))
		ctx = spanCtx
		defer func() {
			metrics.Log("/api/tasks", c.Response().Status, err)
		}()

		authStart := time.Now()
		p, _, perr := d.principal(c)
		metrics.ObserveAuth(time.Since(authStart))
		if perr != nil {
			metrics.SetErrorStage("auth")
			err = fail(c, perr)
			return err
		}

		bucket := domain.TaskStatus(c.QueryParam("status"))
		if bucket != "" && !bucket.Valid() {
			metrics.SetErrorStage("invalid_status")
			err = fail(c, &domain.ValidationError{Field: "status", Reason: "unknown bucket"})
			return err
		}

		fetchStart := time.Now()
		tasks, ferr := d.Visibility.TasksFor(ctx, p, bucket, c.QueryParam("managerId"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if ferr != nil {
			metrics.SetErrorStage("fetch")
			err = fail(c, ferr)
			return err
		}
		metrics.SetTasksReturned(len(tasks))
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		return err
	}
}

func postTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		var body createTaskBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}

		task, err := domain.ValidateDraft(body.TaskDraft)
		if err != nil {
			return fail(c, err)
		}
		ownerID, createdBy, err := visibility.EffectiveOwner(p)
		if err != nil {
			return fail(c, err)
		}
		task.ID = uuid.NewString()
		task.OwnerID = ownerID
		task.CreatedBy = createdBy
		task.CreatedAt = time.Now().UTC()
		if p.Role == domain.RoleManager {
			task.AssignedTo = body.AssignedTo
		}

		ctx := c.Request().Context()
		if err := d.Store.UpsertTask(ctx, task); err != nil {
			return fail(c, err)
		}
		d.publish(ctx, watch.TasksKey(ownerID))
		return c.JSON(http.StatusCreated, task)
	}
}

func patchTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if p.Role != domain.RoleManager {
			return fail(c, domain.ErrNotAuthorized)
		}

		ctx := c.Request().Context()
		task, err := d.Store.GetTask(ctx, p.ID, c.Param("id"))
		if err != nil {
			return fail(c, err)
		}
		if task == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		if !visibility.CanMutate(p, *task) {
			return fail(c, domain.ErrNotAuthorized)
		}

		var body patchTaskBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if err := applyTaskPatch(task, body); err != nil {
			return fail(c, err)
		}
		if err := d.Store.UpsertTask(ctx, *task); err != nil {
			return fail(c, err)
		}
		d.publish(ctx, watch.TasksKey(p.ID))
		return c.JSON(http.StatusOK, task)
	}
}

func applyTaskPatch(task *domain.Task, body patchTaskBody) error {
	draft := domain.TaskDraft{
		Title:       task.Title,
		Phone:       task.Phone,
		Description: task.Description,
		Status:      string(task.Status),
	}
	if !task.Due.IsZero() {
		draft.Due = task.Due.Format(time.RFC3339)
	}
	if body.Title != nil {
		draft.Title = *body.Title
	}
	if body.Phone != nil {
		draft.Phone = *body.Phone
	}
	if body.Description != nil {
		draft.Description = *body.Description
	}
	if body.Due != nil {
		draft.Due = *body.Due
	}
	if body.Status != nil {
		draft.Status = *body.Status
	}

	validated, err := domain.ValidateDraft(draft)
	if err != nil {
		return err
	}
	task.Title = validated.Title
	task.Phone = validated.Phone
	task.Description = validated.Description
	task.Due = validated.Due
	task.Status = validated.Status
	if body.AssignedTo != nil {
		task.AssignedTo = *body.AssignedTo
	}
	return nil
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if p.Role != domain.RoleManager {
			return fail(c, domain.ErrNotAuthorized)
		}

		ctx := c.Request().Context()
		task, err := d.Store.GetTask(ctx, p.ID, c.Param("id"))
		if err != nil {
			return fail(c, err)
		}
		if task == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		if err := d.Store.DeleteTask(ctx, p.ID, task.ID); err != nil {
			return fail(c, err)
		}
		d.publish(ctx, watch.TasksKey(p.ID))
		return c.NoContent(http.StatusOK)
	}
}

// taskForPrincipal locates the task a comment route refers to, using the
// principal's linkage to find the owning partition.
func taskForPrincipal(c echo.Context, d Deps, p domain.Principal) (*domain.Task, error) {
	ownerID := ""
	switch p.Role {
	case domain.RoleManager:
		ownerID = p.ID
	case domain.RoleClient:
		ownerID = p.LinkedManagerID
	case domain.RoleAdmin:
		ownerID = c.QueryParam("managerId")
	}
	if ownerID == "" {
		return nil, domain.ErrNotAuthorized
	}
	return d.Store.GetTask(c.Request().Context(), ownerID, c.Param("id"))
}

func getComments(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		task, err := taskForPrincipal(c, d, p)
		if err != nil {
			return fail(c, err)
		}
		if task == nil || !visibility.CanView(p, *task) {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		comments, err := d.Store.CommentsForTask(c.Request().Context(), task.ID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, comments)
	}
}

func postComment(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, acc, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		task, err := taskForPrincipal(c, d, p)
		if err != nil {
			return fail(c, err)
		}
		if task == nil {
			return c.JSON(http.StatusNotFound, errorResponse{Error: "task not found"})
		}
		if !visibility.CanComment(p, *task) {
			return fail(c, domain.ErrNotAuthorized)
		}

		var body commentBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		text := strings.TrimSpace(body.Text)
		if text == "" {
			return fail(c, &domain.ValidationError{Field: "text", Reason: "required"})
		}

		comment := domain.Comment{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			AuthorID:   p.ID,
			AuthorName: acc.Name,
			Text:       text,
			CreatedAt:  time.Now().UTC(),
		}
		ctx := c.Request().Context()
		if err := d.Store.AppendComment(ctx, comment); err != nil {
			return fail(c, err)
		}
		d.publish(ctx, watch.CommentsKey(task.ID))
		return c.JSON(http.StatusCreated, comment)
	}
}

func getLeads(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if p.Role != domain.RoleManager {
			return fail(c, domain.ErrNotAuthorized)
		}
		leads, err := d.Store.LeadsByOwner(c.Request().Context(), p.ID)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, leads)
	}
}

func postLead(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if p.Role != domain.RoleManager {
			return fail(c, domain.ErrNotAuthorized)
		}
		var lead domain.Lead
		if err := decodeBody(c, &lead); err != nil {
			return err
		}
		lead, err = domain.ValidateLead(lead)
		if err != nil {
			return fail(c, err)
		}
		lead.ID = uuid.NewString()
		lead.OwnerID = p.ID
		lead.CreatedAt = time.Now().UTC()
		if err := d.Store.UpsertLead(c.Request().Context(), lead); err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusCreated, lead)
	}
}

func deleteLead(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if p.Role != domain.RoleManager {
			return fail(c, domain.ErrNotAuthorized)
		}
		if err := d.Store.DeleteLead(c.Request().Context(), p.ID, c.Param("id")); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusOK)
	}
}

func postExtract(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, _, err := d.principal(c); err != nil {
			return fail(c, err)
		}
		if d.Extractor == nil {
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "extraction unavailable"})
		}
		var body extractBody
		if err := decodeBody(c, &body); err != nil {
			return err
		}
		if strings.TrimSpace(body.Text) == "" {
			return fail(c, &domain.ValidationError{Field: "text", Reason: "required"})
		}

		draft, err := d.Extractor.Draft(c.Request().Context(), body.Text)
		if err != nil {
			return fail(c, err)
		}
		// The extractor is an untrusted parser; only validated output leaves
		// this handler.
		task, err := domain.ValidateDraft(draft)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func postPhoto(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, _, err := d.principal(c)
		if err != nil {
			return fail(c, err)
		}
		if d.Uploader == nil {
			return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "uploads unavailable"})
		}

		fh, err := c.FormFile("photo")
		if err != nil {
			return fail(c, &domain.ValidationError{Field: "photo", Reason: "required"})
		}
		f, err := fh.Open()
		if err != nil {
			return fail(c, err)
		}
		defer f.Close()

		name := p.ID + path.Ext(fh.Filename)
		contentType := fh.Header.Get(echo.HeaderContentType)
		ctx := c.Request().Context()
		url, err := d.Uploader.Upload(ctx, name, f, contentType)
		if err != nil {
			return fail(c, err)
		}
		if err := d.Store.UpdateAccountPhoto(ctx, p.ID, url); err != nil {
			return fail(c, err)
		}
		d.publish(ctx, watch.AccountKey(p.ID))
		return c.JSON(http.StatusOK, photoResponse{URL: url})
	}
}

func (d Deps) publish(ctx context.Context, key string) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(ctx, key); err != nil {
		d.Logger.WithError(err).WithField("key", key).Error("publish update failed")
	}
}
