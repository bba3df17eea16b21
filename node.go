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

package aipx

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/aipx/aipx/api"
	"github.com/aipx/aipx/database"
	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/event"
	"github.com/aipx/aipx/hashengine"
	"github.com/aipx/aipx/ledger"
	"github.com/aipx/aipx/verifier"
	"github.com/aipx/aipx/workflow"
)

const defaultShutdownTimeout = 30 * time.Second

// ErrNotOpen is returned by Node methods called before Open
var ErrNotOpen = errors.New("node is not open")

var _ api.Backend = (*Node)(nil)

type Node struct {
	eventBus      *event.EventBus
	db            *database.Database
	ledger        *ledger.Ledger
	verifier      *verifier.Verifier
	workflow      *workflow.Workflow
	api           *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	done          chan struct{}
	openMu        sync.Mutex
	opened        bool
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		cfg.logger = NewConfig().logger
	}
	n := &Node{
		config: cfg,
		done:   make(chan struct{}),
	}
	if err := n.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n.eventBus = event.NewEventBus(cfg.promRegistry, cfg.logger)
	return n, nil
}

// Open loads the database and builds the ledger, verifier, workflow and
// API server. It is safe to call more than once
func (n *Node) Open() error {
	n.openMu.Lock()
	defer n.openMu.Unlock()
	if n.opened {
		return nil
	}
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(&database.Config{
		DataDir:        n.config.dataDir,
		MetadataPlugin: n.config.metadataPlugin,
		Logger:         n.config.logger,
		PromRegistry:   n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	alg, err := hashengine.ParseAlgorithm(string(n.config.hashAlgorithm))
	if err != nil {
		return err
	}
	engine, err := hashengine.New(alg)
	if err != nil {
		return err
	}
	// Load ledger
	n.ledger, err = ledger.New(ledger.LedgerConfig{
		Logger:       n.config.logger,
		Database:     n.db,
		HashEngine:   engine,
		PromRegistry: n.config.promRegistry,
		EventBus:     n.eventBus,
		MaxRetries:   n.config.maxAppendRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	n.verifier, err = verifier.New(verifier.VerifierConfig{
		Logger:       n.config.logger,
		Source:       n.ledger,
		HashEngine:   engine,
		PromRegistry: n.config.promRegistry,
	})
	if err != nil {
		return fmt.Errorf("failed to load verifier: %w", err)
	}
	n.workflow, err = workflow.New(workflow.WorkflowConfig{
		Logger:          n.config.logger,
		Database:        n.db,
		Ledger:          n.ledger,
		PromRegistry:    n.config.promRegistry,
		EventBus:        n.eventBus,
		QuorumThreshold: n.config.quorumThreshold,
		PrivilegedRoles: n.config.privilegedRoles,
	})
	if err != nil {
		return fmt.Errorf("failed to load workflow: %w", err)
	}
	if n.config.apiListenAddress != "" {
		n.api = api.New(
			api.Config{
				ListenAddress:   n.config.apiListenAddress,
				ShutdownTimeout: n.shutdownTimeout(),
			},
			n,
			n.config.logger,
		)
	}
	n.opened = true
	n.config.logger.Debug(
		"node opened",
		"component", "node",
		"hash_algorithm", alg,
		"quorum_threshold", n.config.quorumThreshold,
	)
	return nil
}

// Run opens the node, starts the API listener when configured and blocks
// until ctx is cancelled or Stop is called
func (n *Node) Run(ctx context.Context) error {
	if err := n.Open(); err != nil {
		return err
	}
	if n.api != nil {
		if err := n.api.Start(ctx); err != nil {
			return err
		}
	}
	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case <-n.done:
	}
	return nil
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdownTimeout() time.Duration {
	if n.config.shutdownTimeout > 0 {
		return n.config.shutdownTimeout
	}
	return defaultShutdownTimeout
}

func (n *Node) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), n.shutdownTimeout())
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown", "component", "node")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work", "component", "node")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	// Phase 2: Close database
	n.config.logger.Debug("shutdown phase 2: closing database", "component", "node")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	n.config.logger.Debug("shutdown phase 3: cleanup resources", "component", "node")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete", "component", "node")
	close(n.done)
	return err
}

// ApiAddr returns the address the HTTP API is listening on, or an empty
// string when it is not running
func (n *Node) ApiAddr() string {
	if n.api == nil {
		return ""
	}
	if addr := n.api.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (n *Node) ready() error {
	n.openMu.Lock()
	defer n.openMu.Unlock()
	if !n.opened {
		return ErrNotOpen
	}
	return nil
}

// EventBus returns the bus carrying ledger and workflow events
func (n *Node) EventBus() *event.EventBus {
	return n.eventBus
}

// Workflow returns the approval workflow. It is nil before Open
func (n *Node) Workflow() *workflow.Workflow {
	return n.workflow
}

// Ledger returns the ledger. It is nil before Open
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// AddOperator registers an operator with the given role
func (n *Node) AddOperator(ctx context.Context, username string, role string) (*models.Operator, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	role = strings.TrimSpace(role)
	if username == "" || role == "" {
		return nil, fmt.Errorf("%w: username and role must not be empty", workflow.ErrValidation)
	}
	op := &models.Operator{
		Username:  username,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	txn := n.db.TransactionContext(ctx, true)
	err := txn.Do(func(txn *database.Txn) error {
		return n.db.AddOperator(op, txn)
	})
	if err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, fmt.Errorf("%w: operator %q already exists", workflow.ErrValidation, username)
		}
		return nil, fmt.Errorf("%w: add operator: %w", ledger.ErrPersistence, err)
	}
	n.config.logger.Info(
		"registered operator",
		"component", "node",
		"username", username,
		"role", role,
	)
	return op, nil
}

// Operators returns all registered operators ordered by username
func (n *Node) Operators(ctx context.Context) ([]models.Operator, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	txn := n.db.TransactionContext(ctx, false)
	defer txn.Release()
	ops, err := n.db.GetOperators(txn)
	if err != nil {
		return nil, fmt.Errorf("%w: list operators: %w", ledger.ErrPersistence, err)
	}
	return ops, nil
}

func (n *Node) SubmitItem(
	ctx context.Context,
	submitter, content, reason string,
) (*workflow.SubmitResult, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.workflow.Submit(ctx, submitter, content, reason)
}

func (n *Node) RecordDecision(
	ctx context.Context,
	itemID uint64,
	approver, decision string,
) (*workflow.DecisionResult, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.workflow.RecordDecision(ctx, itemID, approver, decision)
}

func (n *Node) ListItems(ctx context.Context) ([]workflow.ItemView, error) {
	if err := n.ready(); err != nil {
		return nil, err
	}
	return n.workflow.ListItems(ctx)
}

func (n *Node) LedgerEntries(ctx context.Context) iter.Seq2[*ledger.Entry, error] {
	if err := n.ready(); err != nil {
		return func(yield func(*ledger.Entry, error) bool) {
			yield(nil, err)
		}
	}
	return n.ledger.Entries(ctx)
}

func (n *Node) VerifyLedger(ctx context.Context) (verifier.Result, error) {
	if err := n.ready(); err != nil {
		return verifier.Result{}, err
	}
	return n.verifier.Verify(ctx)
}
