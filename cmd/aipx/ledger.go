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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aipx/aipx/api"
	"github.com/aipx/aipx/internal/config"
	"github.com/aipx/aipx/verifier"
	"github.com/spf13/cobra"
)

// exitTampered is the exit status of "ledger verify" when the chain is broken
const exitTampered = 2

func ledgerListRun(ctx context.Context, w io.Writer, cfg *config.Config) error {
	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Stop() //nolint:errcheck
	enc := json.NewEncoder(w)
	for entry, err := range n.LedgerEntries(ctx) {
		if err != nil {
			return err
		}
		if err := enc.Encode(api.NewLedgerEntryResponse(entry)); err != nil {
			return err
		}
	}
	return nil
}

func ledgerVerifyRun(
	ctx context.Context,
	w io.Writer,
	cfg *config.Config,
) (verifier.Result, error) {
	n, err := openNode(cfg)
	if err != nil {
		return verifier.Result{}, err
	}
	defer n.Stop() //nolint:errcheck
	result, err := n.VerifyLedger(ctx)
	if err != nil {
		return result, err
	}
	fmt.Fprintln(w, result.Message())
	for _, issue := range result.Issues() {
		fmt.Fprintln(w, "  "+issue)
	}
	return result, nil
}

func ledgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the approval ledger",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every ledger entry as a JSON line",
			Run: func(cmd *cobra.Command, args []string) {
				cfg := config.FromContext(cmd.Context())
				if cfg == nil {
					slog.Error("no config found in context")
					os.Exit(1)
				}
				if err := ledgerListRun(cmd.Context(), cmd.OutOrStdout(), cfg); err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
			},
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Verify the ledger hash chain",
			Run: func(cmd *cobra.Command, args []string) {
				cfg := config.FromContext(cmd.Context())
				if cfg == nil {
					slog.Error("no config found in context")
					os.Exit(1)
				}
				result, err := ledgerVerifyRun(cmd.Context(), cmd.OutOrStdout(), cfg)
				if err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
				if result.Status == verifier.StatusTampered {
					os.Exit(exitTampered)
				}
			},
		},
	)
	return cmd
}
