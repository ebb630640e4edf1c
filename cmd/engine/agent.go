package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docker/local-rag-engine/pkg/agent"
	"github.com/docker/local-rag-engine/pkg/chat"
)

// newAgentCmd groups the agent lifecycle subcommands: create, update,
// delete, get, list, toggle and execute, operating on the file-per-agent
// registry under {data_dir}/agents.
func newAgentCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage and execute named agents",
	}
	cmd.AddCommand(
		newAgentCreateCmd(flags),
		newAgentUpdateCmd(flags),
		newAgentDeleteCmd(flags),
		newAgentGetCmd(flags),
		newAgentListCmd(flags),
		newAgentToggleCmd(flags),
		newAgentExecuteCmd(flags),
	)
	return cmd
}

func readDefinition(path string) (agent.Definition, error) {
	var def agent.Definition
	raw, err := os.ReadFile(path)
	if err != nil {
		return def, fmt.Errorf("reading agent definition: %w", err)
	}
	if err := json.Unmarshal(raw, &def); err != nil {
		return def, fmt.Errorf("parsing agent definition: %w", err)
	}
	return def, nil
}

func newAgentCreateCmd(flags *rootFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an agent from a JSON definition file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			comps, err := wire(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			def, err := readDefinition(file)
			if err != nil {
				return err
			}
			id, err := comps.agents.Create(def)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the agent definition JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAgentUpdateCmd(flags *rootFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update <agent-id>",
		Short: "Replace an agent's definition from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := wire(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			def, err := readDefinition(file)
			if err != nil {
				return err
			}
			return comps.agents.Update(args[0], def)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the agent definition JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newAgentDeleteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <agent-id>",
		Short: "Delete an agent and its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := wire(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			return comps.agents.Delete(args[0])
		},
	}
}

func newAgentGetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get <agent-id>",
		Short: "Print an agent's definition and execution stats as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := wire(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			def, err := comps.agents.Get(args[0])
			if err != nil {
				return err
			}
			out := struct {
				agent.Definition
				Stats agent.Stats `json:"stats"`
			}{def, comps.agents.Stats(args[0])}

			raw, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		},
	}
}

func newAgentListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			comps, err := wire(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			for _, def := range comps.agents.List() {
				state := "enabled"
				if !def.Enabled {
					state = "disabled"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s  %s  %s\n", def.ID, def.Name, state, def.Description)
			}
			return nil
		},
	}
}

func newAgentToggleCmd(flags *rootFlags) *cobra.Command {
	var enabled bool

	cmd := &cobra.Command{
		Use:   "toggle <agent-id>",
		Short: "Enable or disable an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := wire(cmd.Context(), flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			return comps.agents.Toggle(args[0], enabled)
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether the agent should be enabled")
	return cmd
}

func newAgentExecuteCmd(flags *rootFlags) *cobra.Command {
	var spaceID string
	var historyFile string

	cmd := &cobra.Command{
		Use:   "execute <agent-id> <query>",
		Short: "Run one query through an agent's ReAct loop and print the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			var history []chat.Message
			if historyFile != "" {
				raw, err := os.ReadFile(historyFile)
				if err != nil {
					return fmt.Errorf("reading history: %w", err)
				}
				if err := json.Unmarshal(raw, &history); err != nil {
					return fmt.Errorf("parsing history: %w", err)
				}
			}

			result, err := comps.agents.Execute(ctx, args[0], comps.llm, spaceID, args[1], history)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result.Response)
			if len(result.ToolsUsed) > 0 {
				fmt.Fprintf(out, "\n(tools used: %s; %dms)\n", strings.Join(result.ToolsUsed, ", "), result.DurationMS)
			}
			if !result.Success {
				return fmt.Errorf("agent execution failed: %s", result.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&spaceID, "space", "", "restrict auto-retrieval to one space")
	cmd.Flags().StringVar(&historyFile, "history", "", "path to a JSON file with prior conversation messages")
	return cmd
}
