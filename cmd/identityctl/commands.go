package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/webapi-identity/identity-api/internal/app"
	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
	"github.com/webapi-identity/identity-api/internal/core/service"
	"github.com/webapi-identity/identity-api/internal/infrastructure/config"
	"github.com/webapi-identity/identity-api/pkg/logger"
)

const commandTimeout = 30 * time.Second

// session is what every subcommand works against.
type session struct {
	store ports.CredentialStore
	roles *service.RoleService
	close func(context.Context) error
}

type opener func(ctx context.Context, log zerolog.Logger) (*session, error)

// openEnv builds a session from the process environment.
func openEnv(ctx context.Context, log zerolog.Logger) (*session, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Store == config.StoreMemory {
		log.Warn().Msg("STORE_DRIVER=memory: changes will not outlive this command")
	}
	b, err := app.OpenBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{
		store: b.Store,
		roles: service.NewRoleService(b.Store, b.Cache, b.Audit, log),
		close: b.Close,
	}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var (
		logLevel string
		sess     *session
	)

	root := &cobra.Command{
		Use:           "identityctl",
		Short:         "Administer identities and roles in the identity store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Options{Level: logLevel, Pretty: true, Output: cmd.ErrOrStderr(), Service: "identityctl"})
			s, err := open(cmd.Context(), log)
			if err != nil {
				return err
			}
			sess = s
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if sess == nil || sess.close == nil {
				return nil
			}
			return sess.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: trace|debug|info|warn|error")

	get := func() *session { return sess }
	root.AddCommand(
		createRoleCmd(get),
		listRolesCmd(get),
		createUserCmd(get),
		assignRoleCmd(get, false),
		assignRoleCmd(get, true),
	)
	return root
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, commandTimeout)
}

func createRoleCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "create-role NAME",
		Short: "Create a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			role, err := sess().roles.CreateRole(ctx, args[0])
			if errors.Is(err, domain.ErrDuplicateRole) {
				fmt.Fprintf(cmd.OutOrStdout(), "role %q already exists\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created role %s (%s)\n", role.Name, role.ID)
			return nil
		},
	}
}

func listRolesCmd(sess func() *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list-roles",
		Short: "List all roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			roles, err := sess().roles.ListRoles(ctx)
			if err != nil {
				return err
			}
			for _, r := range roles {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.ID, r.Name)
			}
			return nil
		},
	}
}

func createUserCmd(sess func() *session) *cobra.Command {
	var (
		email        string
		fullName     string
		passwordFile string
	)
	cmd := &cobra.Command{
		Use:   "create-user USERNAME",
		Short: "Create an identity; the password is read from --password-file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readPassword(cmd.InOrStdin(), passwordFile)
			if err != nil {
				return err
			}

			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if email == "" {
				email = args[0]
			}
			created, err := sess().store.CreateIdentity(ctx, &domain.Identity{
				Username: args[0],
				Email:    email,
				FullName: fullName,
			}, plaintext)
			var policy *domain.PolicyError
			switch {
			case errors.As(err, &policy):
				return policy
			case errors.Is(err, domain.ErrUserExists):
				return fmt.Errorf("user %q already exists", args[0])
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", created.Username, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address (defaults to the username)")
	cmd.Flags().StringVar(&fullName, "full-name", "", "Display name")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "File holding the password; stdin when empty")
	return cmd
}

func assignRoleCmd(sess func() *session, remove bool) *cobra.Command {
	use, short := "assign-role USER ROLE", "Add ROLE to USER (username or email)"
	if remove {
		use, short = "remove-role USER ROLE", "Remove ROLE from USER (username or email)"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			res, err := sess().roles.UpdateUserRole(ctx, ports.UpdateUserRoleInput{
				Email:  args[0],
				Role:   args[1],
				Delete: remove,
			})
			if err != nil {
				return err
			}
			switch {
			case !res.Found():
				return fmt.Errorf("user %q not found", args[0])
			case !res.Changed:
				fmt.Fprintln(cmd.OutOrStdout(), "no change")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
			}
			return nil
		},
	}
}

func readPassword(stdin io.Reader, path string) (string, error) {
	var (
		raw []byte
		err error
	)
	if path != "" {
		raw, err = os.ReadFile(path)
	} else {
		raw, err = io.ReadAll(io.LimitReader(stdin, 4096))
	}
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := trimNewline(string(raw))
	if pw == "" {
		return "", errors.New("empty password")
	}
	return pw, nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
