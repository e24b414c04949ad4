package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"book_ghostwriter/prompts"
	"book_ghostwriter/storage"
)

var (
	promptFile        string
	promptDescription string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Manage specialist prompts stored in the database",
}

var promptsSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store built-in prompts for agents that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPromptRepo(func(repo *storage.PromptRepository) error {
			n, err := repo.Seed(cmd.Context(), prompts.Defaults())
			if err != nil {
				return err
			}
			logger.Info("prompts seeded", zap.Int("count", n))
			return nil
		})
	},
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPromptRepo(func(repo *storage.PromptRepository) error {
			items, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tDESCRIPTION")
			for _, sp := range items {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", sp.Name, sp.Version, sp.Description)
			}
			return tw.Flush()
		})
	},
}

var promptsSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Publish a new prompt version read from --file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if promptFile == "" {
			return fmt.Errorf("--file is required")
		}
		body, err := os.ReadFile(promptFile)
		if err != nil {
			return err
		}
		text := strings.TrimSpace(string(body))
		if text == "" {
			return fmt.Errorf("prompt file %s is empty", promptFile)
		}
		return withPromptRepo(func(repo *storage.PromptRepository) error {
			sp := prompts.Specialist{Name: args[0], Description: promptDescription, Prompt: text}
			if sp.Description == "" {
				if cur, err := repo.Get(cmd.Context(), args[0]); err == nil {
					sp.Description = cur.Description
				}
			}
			version, err := repo.Publish(cmd.Context(), sp)
			if err != nil {
				return err
			}
			logger.Info("prompt published", zap.String("name", prompts.Key(args[0])), zap.Int("version", version))
			return nil
		})
	},
}

var promptsExportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Write active prompts to a YAML file usable as prompts_file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPromptRepo(func(repo *storage.PromptRepository) error {
			items, err := repo.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				items = prompts.Defaults()
			}
			for i := range items {
				items[i].Version = 0
			}
			if err := prompts.WriteFile(args[0], items); err != nil {
				return err
			}
			logger.Info("prompts exported", zap.String("path", args[0]), zap.Int("count", len(items)))
			return nil
		})
	},
}

func init() {
	promptsSetCmd.Flags().StringVarP(&promptFile, "file", "f", "", "file containing the prompt text")
	promptsSetCmd.Flags().StringVar(&promptDescription, "description", "", "short description of the agent")
	promptsCmd.AddCommand(promptsSeedCmd, promptsListCmd, promptsSetCmd, promptsExportCmd)
}

func withPromptRepo(fn func(*storage.PromptRepository) error) error {
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(storage.NewPromptRepository(db))
}
