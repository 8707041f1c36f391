// Package linking manages the manager/client association lifecycle: request,
// approve, reject, remove, re-request, and admin role conversion.
package linking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"leaddesk-api/domain"
	"leaddesk-api/watch"
)

// ErrConflict means the current linkage state does not permit the requested
// transition (approving an unlinked client, rejecting twice, and so on).
var ErrConflict = errors.New("linkage state does not permit this transition")

// Store is the persistence surface the linking service writes through. The
// backing store offers per-document atomicity only; every two-sided
// transition here is a sequential best-effort pair of writes.
type Store interface {
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	UpsertAccount(ctx context.Context, a domain.Account) error
	UpdateAccountLink(ctx context.Context, clientID string, status domain.LinkStatus, linkedManagerID string) error
	FindManagerByCode(ctx context.Context, code string) (*domain.Account, error)
	PutLink(ctx context.Context, managerID string, summary domain.ClientSummary) error
	DeleteLink(ctx context.Context, managerID, clientID string) error
	LinkedClients(ctx context.Context, managerID string) ([]domain.ClientSummary, error)
	EnqueueReconcile(ctx context.Context, rec domain.ReconcileRecord) error
}

// Evictor drops cached copies after a write. May be nil.
type Evictor interface {
	EvictAccount(ctx context.Context, id string)
	EvictLinks(ctx context.Context, managerID string)
}

// Publisher announces entity changes to live subscribers. May be nil.
type Publisher interface {
	Publish(ctx context.Context, key string) error
}

// Service implements the linkage state machine. State lives on the client
// account's Status field, mirrored into one link row per client under the
// manager's partition.
type Service struct {
	store  Store
	evict  Evictor
	pub    Publisher
	logger *log.Logger
}

// NewService creates a linking Service. evict and pub may be nil.
func NewService(store Store, evict Evictor, pub Publisher, logger *log.Logger) *Service {
	if store == nil {
		panic("linking.NewService: store is nil")
	}
	if logger == nil {
		logger = log.New()
	}
	return &Service{store: store, evict: evict, pub: pub, logger: logger}
}

// RequestLink transitions an unlinked (or previously rejected/removed)
// client into pending against the manager owning the submitted code.
func (s *Service) RequestLink(ctx context.Context, clientID, code string) error {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return err
	}
	switch client.Status {
	case domain.LinkNone, domain.LinkRejected, domain.LinkRemoved:
	default:
		return ErrConflict
	}

	manager, err := s.store.FindManagerByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if manager == nil {
		return domain.ErrInvalidCode
	}

	summary := domain.ClientSummary{
		ID:     client.ID,
		Name:   client.Name,
		Email:  client.Email,
		Status: domain.LinkPending,
	}
	if err := s.store.PutLink(ctx, manager.ID, summary); err != nil {
		return err
	}
	if err := s.store.UpdateAccountLink(ctx, clientID, domain.LinkPending, manager.ID); err != nil {
		return s.partialFailure(ctx, "request", manager.ID, clientID, err)
	}

	s.settle(ctx, manager.ID, clientID)
	return nil
}

// Approve transitions a pending client to approved.
func (s *Service) Approve(ctx context.Context, managerID, clientID string) error {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Status != domain.LinkPending {
		return ErrConflict
	}
	if client.LinkedManagerID != managerID {
		return domain.ErrNotAuthorized
	}

	summary := domain.ClientSummary{
		ID:     client.ID,
		Name:   client.Name,
		Email:  client.Email,
		Status: domain.LinkApproved,
	}
	if err := s.store.PutLink(ctx, managerID, summary); err != nil {
		return err
	}
	if err := s.store.UpdateAccountLink(ctx, clientID, domain.LinkApproved, managerID); err != nil {
		return s.partialFailure(ctx, "approve", managerID, clientID, err)
	}

	s.settle(ctx, managerID, clientID)
	return nil
}

// Reject transitions a pending client to rejected and drops the link row.
// Rejecting a client that is not pending is a no-op error.
func (s *Service) Reject(ctx context.Context, managerID, clientID string) error {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Status != domain.LinkPending {
		return ErrConflict
	}
	if client.LinkedManagerID != managerID {
		return domain.ErrNotAuthorized
	}

	if err := s.store.DeleteLink(ctx, managerID, clientID); err != nil {
		return err
	}
	if err := s.store.UpdateAccountLink(ctx, clientID, domain.LinkRejected, ""); err != nil {
		return s.partialFailure(ctx, "reject", managerID, clientID, err)
	}

	s.settle(ctx, managerID, clientID)
	return nil
}

// Remove transitions an approved client to removed, clearing its manager
// reference and dropping the link row. The client may re-link afterwards.
func (s *Service) Remove(ctx context.Context, managerID, clientID string) error {
	client, err := s.getClient(ctx, clientID)
	if err != nil {
		return err
	}
	if client.Status != domain.LinkApproved {
		return ErrConflict
	}
	if client.LinkedManagerID != managerID {
		return domain.ErrNotAuthorized
	}

	if err := s.store.DeleteLink(ctx, managerID, clientID); err != nil {
		return err
	}
	if err := s.store.UpdateAccountLink(ctx, clientID, domain.LinkRemoved, ""); err != nil {
		return s.partialFailure(ctx, "remove", managerID, clientID, err)
	}

	s.settle(ctx, managerID, clientID)
	return nil
}

// ConvertToClient demotes a manager account to a client. Destructive and
// irreversible with respect to prior linkage: every linked client is marked
// removed and the manager code and client list are discarded.
func (s *Service) ConvertToClient(ctx context.Context, adminID, managerID string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	manager, err := s.store.GetAccount(ctx, managerID)
	if err != nil {
		return err
	}
	if manager == nil {
		return domain.ErrAccountNotFound
	}
	if manager.Role != domain.RoleManager {
		return ErrConflict
	}

	summaries, err := s.store.LinkedClients(ctx, managerID)
	if err != nil {
		return err
	}
	for _, sum := range summaries {
		if err := s.store.DeleteLink(ctx, managerID, sum.ID); err != nil {
			return err
		}
		if err := s.store.UpdateAccountLink(ctx, sum.ID, domain.LinkRemoved, ""); err != nil {
			return s.partialFailure(ctx, "convert-to-client", managerID, sum.ID, err)
		}
		s.settle(ctx, managerID, sum.ID)
	}

	converted := *manager
	converted.Role = domain.RoleClient
	converted.ManagerCode = ""
	converted.Status = domain.LinkRemoved
	converted.LinkedManagerID = ""
	if err := s.store.UpsertAccount(ctx, converted); err != nil {
		return err
	}

	s.settle(ctx, managerID, managerID)
	return nil
}

// ConvertToManager promotes a client account to a manager with a fresh code.
// The account drops back to pending admin approval.
func (s *Service) ConvertToManager(ctx context.Context, adminID, clientID string) error {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return err
	}
	client, err := s.store.GetAccount(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return domain.ErrAccountNotFound
	}
	if client.Role != domain.RoleClient {
		return ErrConflict
	}

	if client.LinkedManagerID != "" {
		if err := s.store.DeleteLink(ctx, client.LinkedManagerID, clientID); err != nil {
			return err
		}
		s.settle(ctx, client.LinkedManagerID, clientID)
	}

	converted := *client
	converted.Role = domain.RoleManager
	converted.ManagerCode = NewManagerCode()
	converted.Status = domain.LinkNone
	converted.LinkedManagerID = ""
	converted.AdminStatus = domain.AdminPending
	if err := s.store.UpsertAccount(ctx, converted); err != nil {
		return err
	}

	s.settle(ctx, clientID, clientID)
	return nil
}

func (s *Service) getClient(ctx context.Context, clientID string) (*domain.Account, error) {
	client, err := s.store.GetAccount(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrAccountNotFound
	}
	if client.Role != domain.RoleClient {
		return nil, domain.ErrNotAuthorized
	}
	return client, nil
}

func (s *Service) requireAdmin(ctx context.Context, adminID string) error {
	acc, err := s.store.GetAccount(ctx, adminID)
	if err != nil {
		return err
	}
	if acc == nil {
		return domain.ErrAccountNotFound
	}
	if acc.Role != domain.RoleAdmin {
		return domain.ErrNotAuthorized
	}
	return nil
}

// partialFailure wraps a second-side write error, logs it on the dedicated
// reconciliation log and enqueues a reconcile record. The first write stays;
// the caller may retry.
func (s *Service) partialFailure(ctx context.Context, op, managerID, clientID string, err error) error {
	perr := &domain.PartialLinkError{Op: op, ManagerID: managerID, ClientID: clientID, Err: err}
	s.logger.WithFields(log.Fields{
		"reconcile": true,
		"op":        op,
		"manager":   managerID,
		"client":    clientID,
	}).WithError(err).Error("partial link failure")

	rec := domain.ReconcileRecord{
		Op:        op,
		ManagerID: managerID,
		ClientID:  clientID,
		Detail:    err.Error(),
		At:        time.Now().UTC(),
	}
	if qerr := s.store.EnqueueReconcile(ctx, rec); qerr != nil {
		s.logger.WithError(qerr).Error("failed to enqueue reconcile record")
	}
	return perr
}

// settle evicts cached copies and wakes live subscribers after a transition.
func (s *Service) settle(ctx context.Context, managerID, clientID string) {
	if s.evict != nil {
		s.evict.EvictAccount(ctx, clientID)
		s.evict.EvictAccount(ctx, managerID)
		s.evict.EvictLinks(ctx, managerID)
	}
	if s.pub != nil {
		for _, key := range []string{watch.AccountKey(clientID), watch.AccountKey(managerID), watch.LinksKey(managerID)} {
			if err := s.pub.Publish(ctx, key); err != nil {
				s.logger.WithError(err).WithField("key", key).Error("publish update failed")
			}
		}
	}
}

// NewManagerCode mints an opaque manager code like MAN-1A2B3C.
func NewManagerCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "MAN-" + raw[:6]
}
