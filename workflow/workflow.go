// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workflow implements the multi-signature approval state machine.
// Items are submitted as pending and become approved once enough privileged
// operators have signed off. Every transition is recorded in the ledger in
// the same write unit as the state change itself.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/event"
	"github.com/aipx/aipx/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultQuorumThreshold = 2

var DefaultPrivilegedRoles = []string{"supervisor", "judge"}

var (
	ErrNotFound      = errors.New("not found")
	ErrAuthorization = errors.New("not authorized")
	ErrValidation    = errors.New("validation failed")
)

const (
	MessageSubmitted = "Query submitted. Awaiting multi-signature approval."
	MessageApproved  = "Query approved and ready for execution!"
	MessagePending   = "Approval recorded. More signatures needed."
)

type Decision string

const (
	DecisionApproved Decision = models.DecisionApproved
	DecisionRejected Decision = models.DecisionRejected
)

// ParseDecision validates a decision string
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved, DecisionRejected:
		return Decision(s), nil
	default:
		return "", fmt.Errorf(
			"%w: decision must be '%s' or '%s'",
			ErrValidation,
			DecisionApproved,
			DecisionRejected,
		)
	}
}

type WorkflowConfig struct {
	Logger       *slog.Logger
	Database     *database.Database
	Ledger       *ledger.Ledger
	PromRegistry prometheus.Registerer
	// EventBus receives an ItemDecidedEvent per recorded decision when set
	EventBus *event.EventBus
	// QuorumThreshold is the number of approvals that moves an item to
	// approved
	QuorumThreshold int
	// PrivilegedRoles are the operator roles allowed to record decisions
	PrivilegedRoles []string
	Now             func() time.Time
}

type Workflow struct {
	config  WorkflowConfig
	db      *database.Database
	ledger  *ledger.Ledger
	logger  *slog.Logger
	roles   map[string]struct{}
	metrics workflowMetrics
	tracer  trace.Tracer
}

type SubmitResult struct {
	ItemID          uint64
	Status          string
	ContentHash     string
	LedgerEntryHash string
	Message         string
}

type DecisionResult struct {
	ItemID          uint64
	Decision        Decision
	ApprovalsSoFar  int64
	Status          string
	LedgerEntryHash string
	Message         string
}

type ItemView struct {
	ID          uint64
	Submitter   string
	Content     string
	Reason      string
	Status      string
	ContentHash string
	CreatedAt   time.Time
}

func New(cfg WorkflowConfig) (*Workflow, error) {
	if cfg.Database == nil {
		return nil, errors.New("workflow: database is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("workflow: ledger is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.QuorumThreshold == 0 {
		cfg.QuorumThreshold = DefaultQuorumThreshold
	}
	if cfg.QuorumThreshold < 1 {
		return nil, fmt.Errorf(
			"workflow: invalid quorum threshold %d",
			cfg.QuorumThreshold,
		)
	}
	if len(cfg.PrivilegedRoles) == 0 {
		cfg.PrivilegedRoles = slices.Clone(DefaultPrivilegedRoles)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	w := &Workflow{
		config: cfg,
		db:     cfg.Database,
		ledger: cfg.Ledger,
		logger: cfg.Logger.With("component", "workflow"),
		roles:  make(map[string]struct{}, len(cfg.PrivilegedRoles)),
		tracer: otel.Tracer("github.com/aipx/aipx/workflow"),
	}
	for _, role := range cfg.PrivilegedRoles {
		w.roles[role] = struct{}{}
	}
	w.metrics.init(cfg.PromRegistry)
	return w, nil
}

// QuorumThreshold returns the number of approvals required
func (w *Workflow) QuorumThreshold() int {
	return w.config.QuorumThreshold
}

// Privileged reports whether role may record decisions
func (w *Workflow) Privileged(role string) bool {
	_, ok := w.roles[role]
	return ok
}

// Submit creates a pending item and records its submission
func (w *Workflow) Submit(
	ctx context.Context,
	submitter string,
	content string,
	reason string,
) (*SubmitResult, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Submit")
	defer span.End()
	if strings.TrimSpace(content) == "" {
		return nil, w.fail(span, fmt.Errorf("%w: content must not be empty", ErrValidation))
	}
	var ret *SubmitResult
	err := w.ledger.Update(ctx, func(u *ledger.Unit) error {
		txn := u.Txn()
		op, err := w.db.GetOperator(submitter, txn)
		if err != nil {
			return storeError("get operator", err)
		}
		if op == nil {
			return fmt.Errorf("%w: operator %q", ErrNotFound, submitter)
		}
		now := w.config.Now().UTC().Truncate(time.Microsecond)
		contentHash, err := w.ledger.HashEngine().Hex(map[string]any{
			"operator":  submitter,
			"query":     content,
			"reason":    reason,
			"timestamp": now,
		})
		if err != nil {
			return err
		}
		item := &models.Item{
			OperatorID:  op.ID,
			Content:     content,
			Reason:      reason,
			ContentHash: contentHash,
			Status:      models.ItemStatusPending,
			CreatedAt:   now,
		}
		if err := w.db.AddItem(item, txn); err != nil {
			return storeError("add item", err)
		}
		entry, err := u.Append(
			item.ID,
			ledger.EventSubmitted,
			submitter,
			map[string]any{"content_hash": contentHash},
		)
		if err != nil {
			return err
		}
		ret = &SubmitResult{
			ItemID:          item.ID,
			Status:          item.Status,
			ContentHash:     contentHash,
			LedgerEntryHash: entry.EntryHash,
			Message:         MessageSubmitted,
		}
		return nil
	})
	if err != nil {
		return nil, w.fail(span, err)
	}
	w.metrics.submissions.Inc()
	span.SetAttributes(attribute.Int64("item.id", int64(ret.ItemID)))
	w.logger.Info(
		"item submitted",
		"item_id", ret.ItemID,
		"submitter", submitter,
		"content_hash", ret.ContentHash,
	)
	return ret, nil
}

// RecordDecision records a signature from approver, whose role is looked up
// in the operator table
func (w *Workflow) RecordDecision(
	ctx context.Context,
	itemID uint64,
	approver string,
	decision string,
) (*DecisionResult, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.RecordDecision")
	defer span.End()
	d, err := ParseDecision(decision)
	if err != nil {
		return nil, w.fail(span, err)
	}
	var ret *DecisionResult
	err = w.ledger.Update(ctx, func(u *ledger.Unit) error {
		op, err := w.db.GetOperator(approver, u.Txn())
		if err != nil {
			return storeError("get operator", err)
		}
		if op == nil {
			return fmt.Errorf("%w: approver %q", ErrNotFound, approver)
		}
		if err := w.authorize(approver, op.Role); err != nil {
			return err
		}
		ret, err = w.recordDecision(u, itemID, approver, d)
		return err
	})
	if err != nil {
		return nil, w.fail(span, err)
	}
	w.decided(span, approver, ret)
	return ret, nil
}

// RecordDecisionAs records a signature using a role asserted by the caller
// instead of the operator table
func (w *Workflow) RecordDecisionAs(
	ctx context.Context,
	itemID uint64,
	approver string,
	decision string,
	role string,
) (*DecisionResult, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.RecordDecisionAs")
	defer span.End()
	d, err := ParseDecision(decision)
	if err != nil {
		return nil, w.fail(span, err)
	}
	if err := w.authorize(approver, role); err != nil {
		return nil, w.fail(span, err)
	}
	var ret *DecisionResult
	err = w.ledger.Update(ctx, func(u *ledger.Unit) error {
		ret, err = w.recordDecision(u, itemID, approver, d)
		return err
	})
	if err != nil {
		return nil, w.fail(span, err)
	}
	w.decided(span, approver, ret)
	return ret, nil
}

func (w *Workflow) authorize(approver string, role string) error {
	if w.Privileged(role) {
		return nil
	}
	w.logger.Warn(
		"decision refused for unprivileged operator",
		"approver", approver,
		"role", role,
	)
	return fmt.Errorf(
		"%w: only %s can approve queries",
		ErrAuthorization,
		strings.Join(w.config.PrivilegedRoles, " or "),
	)
}

func (w *Workflow) recordDecision(
	u *ledger.Unit,
	itemID uint64,
	approver string,
	decision Decision,
) (*DecisionResult, error) {
	txn := u.Txn()
	item, err := w.db.GetItem(itemID, txn)
	if err != nil {
		return nil, storeError("get item", err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", ErrNotFound, itemID)
	}
	if err := w.db.AddApproval(
		&models.Approval{
			ItemID:     itemID,
			Approver:   approver,
			Decision:   string(decision),
			RecordedAt: w.config.Now().UTC().Truncate(time.Microsecond),
		},
		txn,
	); err != nil {
		return nil, storeError("add approval", err)
	}
	approvals, err := w.db.CountApprovals(itemID, models.DecisionApproved, txn)
	if err != nil {
		return nil, storeError("count approvals", err)
	}
	status := item.Status
	// Approved is terminal and rejections never move the status
	if status != models.ItemStatusApproved &&
		approvals >= int64(w.config.QuorumThreshold) {
		status = models.ItemStatusApproved
		if err := w.db.SetItemStatus(itemID, status, txn); err != nil {
			return nil, storeError("set item status", err)
		}
	}
	entry, err := u.Append(
		itemID,
		string(decision),
		approver,
		map[string]any{"approval_count": approvals},
	)
	if err != nil {
		return nil, err
	}
	message := MessagePending
	if status == models.ItemStatusApproved {
		message = MessageApproved
	}
	return &DecisionResult{
		ItemID:          itemID,
		Decision:        decision,
		ApprovalsSoFar:  approvals,
		Status:          status,
		LedgerEntryHash: entry.EntryHash,
		Message:         message,
	}, nil
}

func (w *Workflow) decided(span trace.Span, approver string, ret *DecisionResult) {
	w.metrics.decisions.WithLabelValues(string(ret.Decision), ret.Status).Inc()
	span.SetAttributes(
		attribute.Int64("item.id", int64(ret.ItemID)),
		attribute.String("item.status", ret.Status),
		attribute.Int64("item.approvals", ret.ApprovalsSoFar),
	)
	w.logger.Info(
		"decision recorded",
		"item_id", ret.ItemID,
		"approver", approver,
		"decision", string(ret.Decision),
		"approvals", ret.ApprovalsSoFar,
		"status", ret.Status,
	)
	if w.config.EventBus != nil {
		w.config.EventBus.Publish(
			event.ItemDecidedEventType,
			event.NewEvent(
				event.ItemDecidedEventType,
				event.ItemDecidedEvent{
					ItemID:         ret.ItemID,
					Approver:       approver,
					Decision:       string(ret.Decision),
					ApprovalsSoFar: ret.ApprovalsSoFar,
					Status:         ret.Status,
				},
			),
		)
	}
}

// ListItems returns all items, newest first
func (w *Workflow) ListItems(ctx context.Context) ([]ItemView, error) {
	txn := w.db.TransactionContext(ctx, false)
	defer txn.Release()
	items, err := w.db.GetItems(txn)
	if err != nil {
		return nil, storeError("list items", err)
	}
	ret := make([]ItemView, 0, len(items))
	for _, item := range items {
		ret = append(ret, ItemView{
			ID:          item.ID,
			Submitter:   item.Submitter,
			Content:     item.Content,
			Reason:      item.Reason,
			Status:      item.Status,
			ContentHash: item.ContentHash,
			CreatedAt:   item.CreatedAt.UTC(),
		})
	}
	return ret, nil
}

func (w *Workflow) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ledger.ErrPersistence, op, err)
}
