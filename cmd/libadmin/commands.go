package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"school-library/internal/core/domain"
	"school-library/internal/core/services"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// operator is the identity libadmin acts as
var operator = domain.Actor{Username: "libadmin", Role: domain.RoleAdmin}

type connectFunc func() (*services.Container, func(), error)

// app holds the connection shared by the subcommands of one invocation
type app struct {
	connect connectFunc
	svc     *services.Container
	close   func()
}

func newRootCmd(connect connectFunc) *cobra.Command {
	a := &app{connect: connect}

	root := &cobra.Command{
		Use:           "libadmin",
		Short:         "Operator tasks for the school library",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			svc, closeFn, err := a.connect()
			if err != nil {
				return err
			}
			a.svc, a.close = svc, closeFn
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.close != nil {
				a.close()
			}
		},
	}

	root.AddCommand(
		a.setupAdminCmd(),
		a.exportCmd(),
		a.finesCmd(),
		a.policyCmd(),
	)
	return root
}

func (a *app) setupAdminCmd() *cobra.Command {
	var username, email string

	cmd := &cobra.Command{
		Use:   "setup-admin",
		Short: "Create the first administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			pw, err := readPassword(cmd, in, "Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(cmd, in, "Confirm password: ")
			if err != nil {
				return err
			}

			user, err := a.svc.Auth.SetupAdmin(cmd.Context(), &services.SetupAdminInput{
				Username:        username,
				Email:           email,
				Password:        pw,
				ConfirmPassword: confirm,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Administrator %s (%s) created\n", user.Username, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "administrator username")
	cmd.Flags().StringVar(&email, "email", "", "administrator email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var format, out string

	cmd := &cobra.Command{
		Use:       "export <table>",
		Short:     "Export members, items, loans or reservations",
		Args:      cobra.ExactArgs(1),
		ValidArgs: services.ReportTables,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := services.ParseReportFormat(format)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer file.Close()
				w = file
			}

			if err := a.svc.Report.Export(cmd.Context(), operator, args[0], f, w); err != nil {
				if out != "" {
					os.Remove(out)
				}
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv, json or pdf")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func (a *app) finesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fines",
		Short: "Fine maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Persist the current fine of every open loan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.svc.Circulation.RefreshFines(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d loan fines updated\n", n)
			return nil
		},
	})
	return cmd
}

func (a *app) policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Lending policy",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current lending policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.svc.Policy.Current(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "max loans:          %d\n", p.MaxLoans)
			fmt.Fprintf(w, "loan duration:      %d days\n", p.LoanDurationDays)
			fmt.Fprintf(w, "max renewals:       %d\n", p.MaxRenewals)
			fmt.Fprintf(w, "renewal extension:  %d days\n", p.RenewalExtensionDays)
			fmt.Fprintf(w, "daily fine rate:    %s\n", p.DailyFineRate.StringFixed(2))
			return nil
		},
	})
	return cmd
}

// readPassword reads without echo from a terminal, or one line otherwise
func readPassword(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
