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

package metadata

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aipx/aipx/database/models"
	"github.com/aipx/aipx/database/plugin"
	"github.com/aipx/aipx/database/types"
	"github.com/prometheus/client_golang/prometheus"
)

// MetadataStore is the relational view of the approval ledger. Every method
// taking a types.Txn runs inside that transaction when it is non-nil and in
// its own short transaction otherwise. Lookups of missing rows return nil
// without an error.
type MetadataStore interface {
	plugin.Plugin

	// Database
	Close() error
	Transaction(ctx context.Context, readWrite bool) types.Txn

	// Operators
	GetOperator(string, types.Txn) (*models.Operator, error)
	SetOperator(*models.Operator, types.Txn) error
	GetOperators(types.Txn) ([]models.Operator, error)

	// Items
	AddItem(*models.Item, types.Txn) error
	GetItem(uint64, types.Txn) (*models.Item, error)
	SetItemStatus(uint64, string, types.Txn) error
	GetItems(types.Txn) ([]models.ItemListing, error)

	// Approvals
	AddApproval(*models.Approval, types.Txn) error
	// CountApprovals counts decisions on an item. An empty decision counts all
	CountApprovals(
		uint64, // itemID
		string, // decision
		types.Txn,
	) (int64, error)

	// Ledger
	GetLedgerTail(types.Txn) (*models.LedgerEntry, error)
	// AddLedgerEntry inserts an entry. A sequence collision is reported as
	// types.ErrConflict
	AddLedgerEntry(*models.LedgerEntry, types.Txn) error
	GetLedgerEntries(
		uint64, // afterSequence
		int, // limit
		types.Txn,
	) ([]models.LedgerEntry, error)
	GetLedgerEntryCount(types.Txn) (int64, error)
}

// New returns the started metadata plugin selected by name
func New(
	pluginName string,
	logger *slog.Logger,
	promRegistry prometheus.Registerer,
) (MetadataStore, error) {
	p, err := plugin.StartPlugin(
		plugin.PluginTypeMetadata,
		pluginName,
		plugin.Env{
			Logger:       logger,
			PromRegistry: promRegistry,
		},
	)
	if err != nil {
		return nil, err
	}
	metadataStore, ok := p.(MetadataStore)
	if !ok {
		_ = p.Stop()
		return nil, fmt.Errorf(
			"plugin '%s' does not implement MetadataStore interface",
			pluginName,
		)
	}
	return metadataStore, nil
}
