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
	"time"

	"github.com/aipx/aipx/internal/config"
	"github.com/spf13/cobra"
)

type operatorOutput struct {
	ID        uint64 `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

func operatorAddRun(
	ctx context.Context,
	w io.Writer,
	cfg *config.Config,
	username string,
	role string,
) error {
	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Stop() //nolint:errcheck
	op, err := n.AddOperator(ctx, username, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "added operator %s (id %d, role %s)\n", op.Username, op.ID, op.Role)
	return nil
}

func operatorListRun(ctx context.Context, w io.Writer, cfg *config.Config) error {
	n, err := openNode(cfg)
	if err != nil {
		return err
	}
	defer n.Stop() //nolint:errcheck
	ops, err := n.Operators(ctx)
	if err != nil {
		return err
	}
	out := make([]operatorOutput, 0, len(ops))
	for _, op := range ops {
		out = append(out, operatorOutput{
			ID:        op.ID,
			Username:  op.Username,
			Role:      op.Role,
			CreatedAt: op.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func operatorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operators",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <username> <role>",
			Short: "Register an operator",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				cfg := config.FromContext(cmd.Context())
				if cfg == nil {
					slog.Error("no config found in context")
					os.Exit(1)
				}
				if err := operatorAddRun(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], args[1]); err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List registered operators",
			Run: func(cmd *cobra.Command, args []string) {
				cfg := config.FromContext(cmd.Context())
				if cfg == nil {
					slog.Error("no config found in context")
					os.Exit(1)
				}
				if err := operatorListRun(cmd.Context(), cmd.OutOrStdout(), cfg); err != nil {
					slog.Error(err.Error())
					os.Exit(1)
				}
			},
		},
	)
	return cmd
}
