package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fixora/secret-review/application/port/inbound"
	"github.com/fixora/secret-review/domain/entity"
)

var diffSymbols = map[entity.DiffType]string{
	entity.DiffTypeAdded:    "+",
	entity.DiffTypeModified: "~",
	entity.DiffTypeRemoved:  "-",
	entity.DiffTypeRollback: "<",
}

type configureOptions struct {
	apiURL        string
	token         string
	region        string
	profile       string
	stagingPrefix string
	secretPrefix  string
}

func newConfigureCmd(a *app) *cobra.Command {
	opts := &configureOptions{}
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Save the API endpoint and access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.configPath)
			if err != nil && !errors.Is(err, errNotConfigured) {
				return err
			}
			if opts.apiURL != "" {
				cfg.APIURL = opts.apiURL
			}
			if opts.token != "" {
				cfg.Token = opts.token
			}
			if opts.region != "" {
				cfg.Region = opts.region
			}
			if opts.profile != "" {
				cfg.Profile = opts.profile
			}
			if opts.stagingPrefix != "" {
				cfg.StagingPrefix = opts.stagingPrefix
			}
			if opts.secretPrefix != "" {
				cfg.SecretPrefix = opts.secretPrefix
			}
			if cfg.APIURL == "" || cfg.Token == "" {
				return fmt.Errorf("both --api-url and --token are required on first configure")
			}
			if err := saveConfig(a.configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Configuration saved to %s\n", a.configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.apiURL, "api-url", "", "review API base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token")
	cmd.Flags().StringVar(&opts.region, "region", "", "AWS region for staging records")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "AWS shared config profile")
	cmd.Flags().StringVar(&opts.stagingPrefix, "staging-prefix", "", "staging namespace prefix")
	cmd.Flags().StringVar(&opts.secretPrefix, "secret-prefix", "", "live secret prefix; when set, propose records the live values as the baseline")
	return cmd
}

type proposeOptions struct {
	project string
	env     string
	reason  string
	file    string
	dryRun  bool
}

func newProposeCmd(a *app) *cobra.Command {
	opts := &proposeOptions{}
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose the contents of a .env file as the new secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			values, err := readEnvFile(opts.file)
			if err != nil {
				return err
			}
			if len(values) == 0 {
				return fmt.Errorf("%w: %s", errNoVariables, opts.file)
			}

			if opts.dryRun {
				fmt.Fprintf(a.out, "Dry run: %d keys for %s/%s\n", len(values), opts.project, opts.env)
				for _, k := range sortedKeys(values) {
					fmt.Fprintf(a.out, "  %s=%s\n", k, maskValue(values[k]))
				}
				return nil
			}

			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			client := newAPIClient(cfg)
			staging := a.staging(cfg)
			ctx := cmd.Context()

			baseline, err := a.readBaseline(ctx, cfg, opts.project, opts.env)
			if err != nil {
				return err
			}

			changeID := uuid.NewString()
			reference, err := staging.CreateStaging(ctx, changeID, entity.StagingPayload{
				ProposedValues: values,
				BaselineValues: baseline,
				Project:        opts.project,
				Env:            opts.env,
			})
			if err != nil {
				return fmt.Errorf("create staging record: %w", err)
			}

			resp, err := client.Propose(ctx, inbound.ProposeRequest{
				Project:           opts.project,
				Env:               opts.env,
				StagingSecretName: reference,
				Reason:            opts.reason,
			})
			if err != nil {
				_ = staging.DeleteStaging(ctx, changeID)
				return err
			}

			if resp.NoChange {
				_ = staging.DeleteStaging(ctx, changeID)
				fmt.Fprintln(a.out, "No changes detected")
				return nil
			}

			fmt.Fprintf(a.out, "Change proposed: %s\n", resp.ChangeID)
			printDiff(a.out, resp.Diff)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "project name")
	cmd.Flags().StringVarP(&opts.env, "env", "e", "", "environment name")
	cmd.Flags().StringVarP(&opts.reason, "reason", "r", "", "reason for the change")
	cmd.Flags().StringVarP(&opts.file, "file", "f", ".env", "dotenv file to propose")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print masked values without proposing")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newApproveCmd(a *app) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "approve <changeId>",
		Short: "Approve a pending change and apply it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Approve(cmd.Context(), args[0], comment)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Approved %s, applied to %s/%s\n", resp.ChangeID, resp.Project, resp.Env)
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func newRejectCmd(a *app) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "reject <changeId>",
		Short: "Reject a pending change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Reject(cmd.Context(), args[0], comment)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Rejected %s\n", resp.ChangeID)
			return nil
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	return cmd
}

func newRollbackCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "rollback <changeId>",
		Short: "Restore the secret version preceding an approved change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.Rollback(cmd.Context(), args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Rolled back %s (rollback record %s)\n", resp.RolledBack, resp.RollbackID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason for the rollback")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

type targetOptions struct {
	project string
	env     string
}

func (o *targetOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.project, "project", "p", "", "project name")
	cmd.Flags().StringVarP(&o.env, "env", "e", "", "environment name")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("env")
}

func newPullCmd(a *app) *cobra.Command {
	opts := &targetOptions{}
	var output string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Show the key names of the live secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.History(cmd.Context(), opts.project, opts.env)
			if err != nil {
				return err
			}

			if output != "" {
				var b strings.Builder
				for _, k := range resp.CurrentKeys {
					b.WriteString(k + "=\n")
				}
				if err := os.WriteFile(output, []byte(b.String()), 0o600); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				fmt.Fprintf(a.out, "Wrote %d keys to %s\n", len(resp.CurrentKeys), output)
				return nil
			}

			if len(resp.CurrentKeys) == 0 {
				fmt.Fprintf(a.out, "No live secret for %s/%s\n", opts.project, opts.env)
				return nil
			}
			for _, k := range resp.CurrentKeys {
				fmt.Fprintln(a.out, k)
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "write a key-only .env template to this file")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	opts := &targetOptions{}
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent changes of a target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			resp, err := client.History(cmd.Context(), opts.project, opts.env)
			if err != nil {
				return err
			}
			if len(resp.History) == 0 {
				fmt.Fprintln(a.out, "No changes recorded")
				return nil
			}
			printChanges(a.out, resp.History)
			return nil
		},
	}
	opts.bind(cmd)
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var changeID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending changes or the detail of one change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}

			if changeID != "" {
				view, err := client.GetDiff(cmd.Context(), changeID)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Change:   %s\n", view.ChangeID)
				fmt.Fprintf(a.out, "Target:   %s/%s\n", view.Project, view.Env)
				fmt.Fprintf(a.out, "Status:   %s\n", view.Status)
				fmt.Fprintf(a.out, "Proposer: %s\n", view.ProposedBy)
				fmt.Fprintf(a.out, "Reason:   %s\n", view.Reason)
				if view.ReviewedBy != "" {
					fmt.Fprintf(a.out, "Reviewer: %s\n", view.ReviewedBy)
				}
				printDiff(a.out, view.Diff)
				return nil
			}

			resp, err := client.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			if len(resp.Changes) == 0 {
				fmt.Fprintln(a.out, "No pending changes")
				return nil
			}
			printChanges(a.out, resp.Changes)
			return nil
		},
	}
	cmd.Flags().StringVar(&changeID, "change-id", "", "show one change")
	return cmd
}

func printDiff(w io.Writer, entries []entity.DiffEntry) {
	for _, e := range entries {
		symbol, ok := diffSymbols[e.Type]
		if !ok {
			symbol = "*"
		}
		fmt.Fprintf(w, "  %s %s\n", symbol, e.Key)
	}
}

func printChanges(w io.Writer, changes []inbound.ChangeView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANGE\tTARGET\tSTATUS\tPROPOSER\tKEYS\tCREATED")
	for _, c := range changes {
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%d\t%s\n",
			c.ChangeID, c.Project, c.Env, c.Status, c.ProposedBy, c.DiffCount, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	_ = tw.Flush()
}
