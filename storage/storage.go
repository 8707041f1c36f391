package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"leaddesk-api/domain"
)

// Storage provides access to the underlying tables and the reconcile queue.
type Storage struct {
	userTable      *aztables.Client
	taskTable      *aztables.Client
	commentTable   *aztables.Client
	leadTable      *aztables.Client
	linkTable      *aztables.Client
	reconcileQueue *azqueue.QueueClient
}

// Tables groups the table names required by New.
type Tables struct {
	Users    string
	Tasks    string
	Comments string
	Leads    string
	Links    string
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, reconcileQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	rq, err := azqueue.NewQueueClientFromConnectionString(connStr, reconcileQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		userTable:      svc.NewClient(tables.Users),
		taskTable:      svc.NewClient(tables.Tasks),
		commentTable:   svc.NewClient(tables.Comments),
		leadTable:      svc.NewClient(tables.Leads),
		linkTable:      svc.NewClient(tables.Links),
		reconcileQueue: rq,
	}, nil
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

// escapeFilterValue doubles single quotes for OData filter literals.
func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

type accountEntity struct {
	aztables.Entity
	Name            string `json:"Name"`
	Email           string `json:"Email"`
	Role            string `json:"Role"`
	AdminStatus     string `json:"AdminStatus"`
	Status          string `json:"Status"`
	LinkedManagerID string `json:"LinkedManagerId"`
	ManagerCode     string `json:"ManagerCode"`
	PhotoURL        string `json:"PhotoUrl"`
}

func decodeAccountEntity(data []byte) (domain.Account, error) {
	var ent accountEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Account{}, err
	}
	return domain.Account{
		ID:              ent.RowKey,
		Name:            ent.Name,
		Email:           ent.Email,
		Role:            domain.Role(ent.Role),
		AdminStatus:     domain.AdminStatus(ent.AdminStatus),
		Status:          domain.LinkStatus(ent.Status),
		LinkedManagerID: ent.LinkedManagerID,
		ManagerCode:     ent.ManagerCode,
		PhotoURL:        ent.PhotoURL,
	}, nil
}

func encodeAccountEntity(a domain.Account) accountEntity {
	return accountEntity{
		Entity:          aztables.Entity{PartitionKey: a.ID, RowKey: a.ID},
		Name:            a.Name,
		Email:           a.Email,
		Role:            string(a.Role),
		AdminStatus:     string(a.AdminStatus),
		Status:          string(a.Status),
		LinkedManagerID: a.LinkedManagerID,
		ManagerCode:     a.ManagerCode,
		PhotoURL:        a.PhotoURL,
	}
}

// GetAccount retrieves an account if present. A missing account is reported
// as (nil, nil); callers decide whether that is an error.
func (s *Storage) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	ent, err := s.userTable.GetEntity(ctx, id, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	acc, err := decodeAccountEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// UpsertAccount creates or replaces a full account document.
func (s *Storage) UpsertAccount(ctx context.Context, a domain.Account) error {
	payload, err := json.Marshal(encodeAccountEntity(a))
	if err == nil {
		_, err = s.userTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

type accountLinkUpdate struct {
	aztables.Entity
	Status          string `json:"Status"`
	LinkedManagerID string `json:"LinkedManagerId"`
}

// UpdateAccountLink merges linkage fields into an existing account entity.
// Per-document atomicity is the only guarantee the store offers; cross
// document consistency is the linking service's problem.
func (s *Storage) UpdateAccountLink(ctx context.Context, clientID string, status domain.LinkStatus, linkedManagerID string) error {
	ent := accountLinkUpdate{
		Entity:          aztables.Entity{PartitionKey: clientID, RowKey: clientID},
		Status:          string(status),
		LinkedManagerID: linkedManagerID,
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

type accountPhotoUpdate struct {
	aztables.Entity
	PhotoURL string `json:"PhotoUrl"`
}

// UpdateAccountPhoto merges a durable photo URL into the account entity.
func (s *Storage) UpdateAccountPhoto(ctx context.Context, id, url string) error {
	ent := accountPhotoUpdate{
		Entity:   aztables.Entity{PartitionKey: id, RowKey: id},
		PhotoURL: url,
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// FindManagerByCode resolves a manager code by field-equality query.
// A code owned by no manager is reported as (nil, nil).
func (s *Storage) FindManagerByCode(ctx context.Context, code string) (*domain.Account, error) {
	filter := fmt.Sprintf("ManagerCode eq '%s' and Role eq 'manager'", escapeFilterValue(code))
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			acc, err := decodeAccountEntity(e)
			if err != nil {
				return nil, err
			}
			return &acc, nil
		}
	}
	return nil, nil
}

type linkEntity struct {
	aztables.Entity
	Name   string `json:"Name"`
	Email  string `json:"Email"`
	Status string `json:"Status"`
}

func decodeLinkEntity(data []byte) (domain.ClientSummary, error) {
	var ent linkEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.ClientSummary{}, err
	}
	return domain.ClientSummary{
		ID:     ent.RowKey,
		Name:   ent.Name,
		Email:  ent.Email,
		Status: domain.LinkStatus(ent.Status),
	}, nil
}

// PutLink creates or replaces a single link row under the manager's
// partition. One row per client keeps approve/reject/remove atomic per entry
// instead of rewriting a denormalized array.
func (s *Storage) PutLink(ctx context.Context, managerID string, summary domain.ClientSummary) error {
	ent := linkEntity{
		Entity: aztables.Entity{PartitionKey: managerID, RowKey: summary.ID},
		Name:   summary.Name,
		Email:  summary.Email,
		Status: string(summary.Status),
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.linkTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// DeleteLink removes a link row. Deleting an absent row is not an error.
func (s *Storage) DeleteLink(ctx context.Context, managerID, clientID string) error {
	_, err := s.linkTable.DeleteEntity(ctx, managerID, clientID, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// LinkedClients lists the manager's client summaries in row-key order.
func (s *Storage) LinkedClients(ctx context.Context, managerID string) ([]domain.ClientSummary, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(managerID) + "'"
	pager := s.linkTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	summaries := []domain.ClientSummary{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			sum, err := decodeLinkEntity(e)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, sum)
		}
	}
	return summaries, nil
}

type taskEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Phone       string `json:"Phone"`
	Description string `json:"Description"`
	Due         string `json:"Due"`
	Status      string `json:"Status"`
	CreatedBy   string `json:"CreatedBy"`
	AssignedTo  string `json:"AssignedTo"`
	CreatedAt   string `json:"CreatedAt"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	task := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Phone:       ent.Phone,
		Description: ent.Description,
		Status:      domain.TaskStatus(ent.Status),
		OwnerID:     ent.PartitionKey,
		CreatedBy:   ent.CreatedBy,
	}
	if ent.Due != "" {
		if t, err := time.Parse(time.RFC3339, ent.Due); err == nil {
			task.Due = t
		}
	}
	if ent.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, ent.CreatedAt); err == nil {
			task.CreatedAt = t
		}
	}
	if ent.AssignedTo != "" {
		if err := json.Unmarshal([]byte(ent.AssignedTo), &task.AssignedTo); err != nil {
			return domain.Task{}, err
		}
	}
	return task, nil
}

func encodeTaskEntity(t domain.Task) (taskEntity, error) {
	ent := taskEntity{
		Entity:      aztables.Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:       t.Title,
		Phone:       t.Phone,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
	}
	if !t.Due.IsZero() {
		ent.Due = t.Due.UTC().Format(time.RFC3339)
	}
	if !t.CreatedAt.IsZero() {
		ent.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	if len(t.AssignedTo) > 0 {
		data, err := json.Marshal(t.AssignedTo)
		if err != nil {
			return taskEntity{}, err
		}
		ent.AssignedTo = string(data)
	}
	return ent, nil
}

// GetTask retrieves a task by owner and id if present.
func (s *Storage) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	ent, err := s.taskTable.GetEntity(ctx, ownerID, taskID, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	task, err := decodeTaskEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpsertTask creates or replaces a task document.
func (s *Storage) UpsertTask(ctx context.Context, t domain.Task) error {
	ent, err := encodeTaskEntity(t)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.taskTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// DeleteTask removes a task document.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, taskID, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// TasksByOwner lists a manager's tasks, optionally restricted to one status
// bucket.
func (s *Storage) TasksByOwner(ctx context.Context, ownerID string, status domain.TaskStatus) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(ownerID) + "'"
	if status != "" {
		filter += " and Status eq '" + escapeFilterValue(string(status)) + "'"
	}
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

type commentEntity struct {
	aztables.Entity
	AuthorID   string `json:"AuthorId"`
	AuthorName string `json:"AuthorName"`
	Text       string `json:"Text"`
	CreatedAt  string `json:"CreatedAt"`
}

func decodeCommentEntity(data []byte) (domain.Comment, error) {
	var ent commentEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:         ent.RowKey,
		TaskID:     ent.PartitionKey,
		AuthorID:   ent.AuthorID,
		AuthorName: ent.AuthorName,
		Text:       ent.Text,
	}
	if ent.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, ent.CreatedAt); err == nil {
			c.CreatedAt = t
		}
	}
	return c, nil
}

// AppendComment writes a new comment row under the task's partition.
// Comments are append-only; there is no update or delete.
func (s *Storage) AppendComment(ctx context.Context, c domain.Comment) error {
	ent := commentEntity{
		Entity:     aztables.Entity{PartitionKey: c.TaskID, RowKey: c.ID},
		AuthorID:   c.AuthorID,
		AuthorName: c.AuthorName,
		Text:       c.Text,
		CreatedAt:  c.CreatedAt.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.commentTable.AddEntity(ctx, payload, nil)
	}
	return err
}

// CommentsForTask lists a task's comments in row-key order.
func (s *Storage) CommentsForTask(ctx context.Context, taskID string) ([]domain.Comment, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(taskID) + "'"
	pager := s.commentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	comments := []domain.Comment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			c, err := decodeCommentEntity(e)
			if err != nil {
				return nil, err
			}
			comments = append(comments, c)
		}
	}
	return comments, nil
}

type leadEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Phone     string `json:"Phone"`
	Note      string `json:"Note"`
	CreatedAt string `json:"CreatedAt"`
}

func decodeLeadEntity(data []byte) (domain.Lead, error) {
	var ent leadEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Lead{}, err
	}
	l := domain.Lead{
		ID:      ent.RowKey,
		OwnerID: ent.PartitionKey,
		Name:    ent.Name,
		Phone:   ent.Phone,
		Note:    ent.Note,
	}
	if ent.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, ent.CreatedAt); err == nil {
			l.CreatedAt = t
		}
	}
	return l, nil
}

// UpsertLead creates or replaces a lead document.
func (s *Storage) UpsertLead(ctx context.Context, l domain.Lead) error {
	ent := leadEntity{
		Entity:    aztables.Entity{PartitionKey: l.OwnerID, RowKey: l.ID},
		Name:      l.Name,
		Phone:     l.Phone,
		Note:      l.Note,
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.leadTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// DeleteLead removes a lead document.
func (s *Storage) DeleteLead(ctx context.Context, ownerID, leadID string) error {
	_, err := s.leadTable.DeleteEntity(ctx, ownerID, leadID, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// LeadsByOwner lists a manager's leads.
func (s *Storage) LeadsByOwner(ctx context.Context, ownerID string) ([]domain.Lead, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(ownerID) + "'"
	pager := s.leadTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	leads := []domain.Lead{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			l, err := decodeLeadEntity(e)
			if err != nil {
				return nil, err
			}
			leads = append(leads, l)
		}
	}
	return leads, nil
}

// EnqueueReconcile sends a reconciliation record to the reconcile queue.
func (s *Storage) EnqueueReconcile(ctx context.Context, rec domain.ReconcileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.reconcileQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueReconcile receives at most one reconcile record. The returned ack
// deletes the message; a record that is never acked becomes visible again
// after the queue's visibility timeout. Undecodable messages are deleted.
func (s *Storage) DequeueReconcile(ctx context.Context) (*domain.ReconcileRecord, func(context.Context) error, error) {
	resp, err := s.reconcileQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil, nil
	}
	msg := resp.Messages[0]
	if msg == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		// Undeletable degenerate message; leave it to the visibility timeout.
		return nil, nil, nil
	}
	ack := func(ctx context.Context) error {
		_, err := s.reconcileQueue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
		return err
	}

	rec, ok := decodeReconcileMessage(msg.MessageText)
	if !ok {
		_ = ack(ctx)
		return nil, nil, nil
	}
	return rec, ack, nil
}

// decodeReconcileMessage parses a queue message body. A nil or undecodable
// body reports false and the message is dropped.
func decodeReconcileMessage(text *string) (*domain.ReconcileRecord, bool) {
	if text == nil {
		return nil, false
	}
	var rec domain.ReconcileRecord
	if err := json.Unmarshal([]byte(*text), &rec); err != nil {
		return nil, false
	}
	return &rec, true
}
