package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/swordot/portal/config"
	"github.com/swordot/portal/internal/client/portal"
	"github.com/swordot/portal/pkg/helpers"
)

type cli struct {
	out     io.Writer
	baseURL string
	timeout time.Duration
	client  *portal.Client
}

func newRootCmd(out io.Writer) *cobra.Command {
	cl := &cli{out: out}
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Command line client for the account portal API",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.client = portal.New(cl.baseURL)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cl.client != nil {
				cl.client.Close()
			}
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&cl.baseURL, "url", config.Load().PortalURL, "portal base URL (PORTAL_URL)")
	root.PersistentFlags().DurationVar(&cl.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(cl.accountCmd(), cl.sessionCmd())
	return root
}

func (cl *cli) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cl.timeout)
}

func (cl *cli) accountCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Create, show and search accounts"}

	get := &cobra.Command{
		Use:   "get NAME",
		Short: "Show an account with its characters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cl.ctx()
			defer cancel()
			page, err := cl.client.GetAccountByName(ctx, args[0])
			if err != nil {
				return err
			}
			if page == nil {
				return fmt.Errorf("account %q not found", args[0])
			}
			fmt.Fprintf(cl.out, "%s (#%d, %s)\n", page.Account.Name, page.Account.ID, page.Account.Type)
			fmt.Fprintf(cl.out, "created: %s\n", helpers.FormatUnix(page.Account.Creation))
			if page.Account.PremiumActive {
				fmt.Fprintf(cl.out, "premium until: %s\n", helpers.FormatUnix(page.Account.PremiumEndsAt))
			}
			for _, p := range page.Account.Players {
				fmt.Fprintf(cl.out, "  %-20s level %d\n", p.Name, p.Level)
			}
			return nil
		},
	}

	var in portal.CreateAccountRequest
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cl.ctx()
			defer cancel()
			acc, err := cl.client.CreateAccount(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cl.out, "created %s (#%d) at %s\n", acc.Name, acc.ID, helpers.FormatUnix(acc.Creation))
			return nil
		},
	}
	create.Flags().StringVar(&in.Name, "name", "", "account name")
	create.Flags().StringVar(&in.Email, "email", "", "email address")
	create.Flags().StringVar(&in.Password, "password", "", "password")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	var size int
	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search accounts by name prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cl.ctx()
			defer cancel()
			hits, err := cl.client.SearchAccounts(ctx, args[0], size)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cl.out)
			enc.SetIndent("", "  ")
			return enc.Encode(hits)
		},
	}
	search.Flags().IntVar(&size, "size", 10, "maximum number of results")

	cmd.AddCommand(get, create, search)
	return cmd
}

func (cl *cli) sessionCmd() *cobra.Command {
	var name, password string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Sign in with the given credentials and show the session user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := cl.ctx()
			defer cancel()
			if name != "" {
				if _, err := cl.client.Login(ctx, name, password); err != nil {
					return err
				}
			}
			user, err := cl.client.Session(ctx)
			if err != nil {
				return err
			}
			if user == nil {
				fmt.Fprintln(cl.out, "not signed in")
				return nil
			}
			fmt.Fprintf(cl.out, "signed in as %s (#%d)\n", user.Name, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "account name to sign in with")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}
