// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/audit"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/chainfile"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/config"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/executors"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/logging"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/orchestrator"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/registry"
	"github.com/spf13/cobra"
)

// errExecutionFailed marks a run that completed with success=false.
var errExecutionFailed = errors.New("execution failed")

type runOptions struct {
	file  string
	input string
	vars  []string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cfg := config.Load()
	logger := logging.NewLoggerTo(stderr, cfg.Env)

	root := &cobra.Command{
		Use:           "chainctl",
		Short:         "Validate and run chain definition files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newValidateCmd(logger),
		newRunCmd(cfg, logger),
		newVersionCmd(),
	)
	return root
}

func newValidateCmd(logger *slog.Logger) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check step ids and the dependency graph of a chain file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := chainfile.LoadFile(file)
			if err != nil {
				logger.Error("chain file rejected", "file", file, "error", err)
				return err
			}
			if err := domain.ValidateGraph(spec.Steps); err != nil {
				logger.Error("chain graph rejected", "file", file, "error", err)
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d steps)\n", displayName(spec, file), len(spec.Steps))
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "chain definition file (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRunCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a chain file in-process and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			collaborators := executors.NewCollaborators(executors.Endpoints{
				LLM:       cfg.LLMEndpoint,
				Tools:     cfg.ToolEndpoint,
				Translate: cfg.TranslateEndpoint,
				Secret:    cfg.CollaboratorSecret,
				Timeout:   cfg.CollaboratorTimeout,
			}, logger)
			return runChain(cmd, opts, collaborators, logger)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "chain definition file (- for stdin)")
	cmd.Flags().StringVar(&opts.input, "input", "", "chain input as JSON; plain text is passed as a string")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "prompt variable as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runChain(cmd *cobra.Command, opts runOptions, collaborators executors.Collaborators, logger *slog.Logger) error {
	spec, err := chainfile.LoadFile(opts.file)
	if err != nil {
		return err
	}
	variables, err := parseVars(opts.vars)
	if err != nil {
		return err
	}

	chains := registry.New(registry.Deps{Logger: logger})
	chain, err := chains.Create(cmd.Context(), spec)
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.Deps{
		Chains:     chains,
		Audit:      audit.NewLog(audit.NewMemoryStore(), logger),
		LLM:        collaborators.LLM,
		Tools:      collaborators.Tools,
		Translator: collaborators.Translator,
		Logger:     logger,
	})

	result, runErr := orch.ExecuteChain(cmd.Context(), chain.ID, parseInput(opts.input), orchestrator.ExecuteOptions{
		Variables: variables,
	})
	if result == nil {
		return runErr
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if !result.Success {
		if runErr != nil {
			return fmt.Errorf("%w: %v", errExecutionFailed, runErr)
		}
		return errExecutionFailed
	}
	return nil
}

// parseInput decodes raw as JSON and falls back to the raw text.
func parseInput(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		vars[key] = parseInput(value)
	}
	return vars, nil
}

func displayName(spec domain.ChainSpec, file string) string {
	if spec.Name != "" {
		return spec.Name
	}
	return file
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "chainctl %s (commit %s, built %s)\n", Version, Commit, BuildDate)
			return err
		},
	}
}
