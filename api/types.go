package api

import (
	"context"
	"io"

	"leaddesk-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	UpdateAccountPhoto(ctx context.Context, id, url string) error
	LinkedClients(ctx context.Context, managerID string) ([]domain.ClientSummary, error)

	GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error)
	UpsertTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	TasksByOwner(ctx context.Context, ownerID string, status domain.TaskStatus) ([]domain.Task, error)

	AppendComment(ctx context.Context, c domain.Comment) error
	CommentsForTask(ctx context.Context, taskID string) ([]domain.Comment, error)

	UpsertLead(ctx context.Context, l domain.Lead) error
	DeleteLead(ctx context.Context, ownerID, leadID string) error
	LeadsByOwner(ctx context.Context, ownerID string) ([]domain.Lead, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Linker drives the manager/client linkage lifecycle.
type Linker interface {
	RequestLink(ctx context.Context, clientID, code string) error
	Approve(ctx context.Context, managerID, clientID string) error
	Reject(ctx context.Context, managerID, clientID string) error
	Remove(ctx context.Context, managerID, clientID string) error
	ConvertToClient(ctx context.Context, adminID, managerID string) error
	ConvertToManager(ctx context.Context, adminID, clientID string) error
}

// Uploader stores a file and returns its durable URL.
type Uploader interface {
	Upload(ctx context.Context, name string, content io.Reader, contentType string) (string, error)
}

// Extractor turns free text into a task draft. Its output is untrusted and
// must be validated before it is written anywhere.
type Extractor interface {
	Draft(ctx context.Context, text string) (domain.TaskDraft, error)
}

// Publisher announces entity changes to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, key string) error
}
