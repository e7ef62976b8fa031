package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/auth"
	"github.com/AcelinoMargotti/scinexa-project-nexus/internal/model"
)

type tokenIssueOptions struct {
	*RootOptions
	Subject string
	Role    string
	Name    string
	TTL     time.Duration
}

type tokenIssueResult struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newTokenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(rootOpts))
	return cmd
}

func newTokenIssueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenIssueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for an actor",
		Long: `Sign an HS256 bearer token with the configured jwt.secret.

Examples:
  nexusctl token issue --sub sup-1 --role supervisor --name "Dr. Ada"
  nexusctl token issue --sub tr-7 --role trainee --ttl 1h --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "sub", "", "actor identity (required)")
	cmd.Flags().StringVar(&opts.Role, "role", "", "supervisor or trainee (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime; 0 uses jwt.ttl")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}

func runTokenIssue(opts *tokenIssueOptions, cmd *cobra.Command) error {
	actor, err := model.NewActor(opts.Subject, model.Role(opts.Role), opts.Name)
	if err != nil {
		return wrapExitError(ExitCommandError, "invalid actor", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = cfg.JWT.TTL
	}
	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	signed, err := tokens.Issue(actor, ttl)
	if err != nil {
		return wrapExitError(ExitFailure, "failed to sign token", err)
	}

	return opts.print(cmd.OutOrStdout(), tokenIssueResult{
		Token:     signed,
		Subject:   actor.ID,
		Role:      string(actor.Role),
		ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
	}, signed)
}
