package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessiongate/member"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage members in the configured store",
}

var (
	memberLoginID       string
	memberName          string
	memberPassword      string
	memberPasswordStdin bool
)

var memberAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a member",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := memberPassword
		if memberPasswordStdin {
			p, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}
			password = p
		}

		ctx := cmd.Context()
		repo, closeRepo, err := openPersistentStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		svc := member.NewService(member.NewRepository(repo), member.WithServiceLogger(logger))
		return addMember(ctx, svc, member.RegisterRequest{
			LoginID:  memberLoginID,
			Name:     memberName,
			Password: password,
		}, cmd.OutOrStdout())
	},
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered members",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		repo, closeRepo, err := openPersistentStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRepo()
		return listMembers(ctx, member.NewRepository(repo), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberAddCmd, memberListCmd)

	memberAddCmd.Flags().StringVar(&memberLoginID, "login-id", "", "Login id (required)")
	memberAddCmd.Flags().StringVar(&memberName, "name", "", "Display name (required)")
	memberAddCmd.Flags().StringVar(&memberPassword, "password", "", "Password")
	memberAddCmd.Flags().BoolVar(&memberPasswordStdin, "password-stdin", false, "Read the password from stdin")
	memberAddCmd.MarkFlagRequired("login-id")
	memberAddCmd.MarkFlagRequired("name")
	memberAddCmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func readPassword(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return "", errors.New("no password on stdin")
	}
	return strings.TrimRight(scanner.Text(), "\r"), nil
}

func addMember(ctx context.Context, svc *member.Service, req member.RegisterRequest, out io.Writer) error {
	m, err := svc.Register(ctx, req)
	if errors.Is(err, member.ErrDuplicateLoginID) {
		return fmt.Errorf("login id %q is already registered", req.LoginID)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Registered %s (%s) with id %s\n", m.LoginID, m.Name, m.ID)
	return nil
}

func listMembers(ctx context.Context, repo member.Repository, out io.Writer) error {
	members, err := repo.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLOGIN ID\tNAME\tCREATED")
	for _, m := range members {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.LoginID, m.Name, m.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
