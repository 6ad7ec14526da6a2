package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fitcoach/access/internal/auth"
	"github.com/fitcoach/access/internal/platform/cache"
	"github.com/fitcoach/access/internal/platform/db"
	"github.com/fitcoach/access/internal/rbac"
	"github.com/fitcoach/access/internal/roles"
)

// AssignmentStore is the subset of the role repository the operator commands need.
type AssignmentStore interface {
	Assign(ctx context.Context, params roles.AssignParams) (roles.Assignment, error)
	Revoke(ctx context.Context, identityID string, check roles.ReachCheck) error
}

// RolesCLI offers operator helpers that bypass the API escalation rules, for example to
// bootstrap the first admin.
type RolesCLI struct {
	store AssignmentStore
	cache roles.Invalidator
}

// NewRolesCLI constructs the helper. cache may be nil.
func NewRolesCLI(store AssignmentStore, cache roles.Invalidator) *RolesCLI {
	return &RolesCLI{store: store, cache: cache}
}

// GrantOptions configures the grant command.
type GrantOptions struct {
	IdentityID string
	Role       string
	TTL        time.Duration
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RevokeOptions configures the revoke command.
type RevokeOptions struct {
	IdentityID string
	Stdout     io.Writer
	Stderr     io.Writer
}

// GrantCommand assigns a role and returns the process exit code.
func (c *RolesCLI) GrantCommand(ctx context.Context, opts GrantOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	identityID, err := parseIdentity(opts.IdentityID)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	role, ok := rbac.ParseRole(opts.Role)
	if !ok {
		fmt.Fprintf(stderr, "unknown role %q\n", opts.Role)
		return 2
	}
	params := roles.AssignParams{IdentityID: identityID, Role: role, Priority: role.Level()}
	if opts.TTL > 0 {
		expires := time.Now().Add(opts.TTL).UTC()
		params.ExpiresAt = &expires
	}

	assignment, err := c.store.Assign(ctx, params)
	if err != nil {
		fmt.Fprintf(stderr, "grant failed: %v\n", err)
		return 1
	}
	if err := c.invalidate(ctx, identityID); err != nil {
		fmt.Fprintf(stderr, "grant applied but cache invalidation failed: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(assignment); err != nil {
			fmt.Fprintf(stderr, "encode output: %v\n", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stdout, "granted %s to %s\n", role, identityID)
	return 0
}

// RevokeCommand ends the active assignment and returns the process exit code.
func (c *RolesCLI) RevokeCommand(ctx context.Context, opts RevokeOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	identityID, err := parseIdentity(opts.IdentityID)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if err := c.store.Revoke(ctx, identityID, nil); err != nil {
		if errors.Is(err, roles.ErrNotFound) {
			fmt.Fprintf(stderr, "%s has no active assignment\n", identityID)
			return 1
		}
		fmt.Fprintf(stderr, "revoke failed: %v\n", err)
		return 1
	}
	if err := c.invalidate(ctx, identityID); err != nil {
		fmt.Fprintf(stderr, "revoke applied but cache invalidation failed: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "revoked role of %s\n", identityID)
	return 0
}

// PrintMatrix writes the role and permission registry as a table.
func PrintMatrix(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := []string{"PERMISSION"}
	for _, role := range rbac.Roles() {
		header = append(header, strings.ToUpper(role.String()))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, perm := range rbac.Permissions() {
		row := []string{perm.String()}
		for _, role := range rbac.Roles() {
			mark := "-"
			if rbac.HasPermission(role, perm) {
				mark = "x"
			}
			row = append(row, mark)
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (c *RolesCLI) invalidate(ctx context.Context, identityID string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Invalidate(ctx, identityID)
}

func parseIdentity(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("identity must be a uuid: %w", err)
	}
	return id.String(), nil
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

type exitCodeError int

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

func newRolesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Inspect the registry and manage assignments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "matrix",
		Short: "Print the role and permission matrix",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return PrintMatrix(cmd.OutOrStdout())
		},
	})

	var grant GrantOptions
	grantCmd := &cobra.Command{
		Use:   "grant",
		Short: "Assign a role without escalation checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRolesCLI(cmd.Context(), func(c *RolesCLI) int {
				grant.Stdout, grant.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
				return c.GrantCommand(cmd.Context(), grant)
			})
		},
	}
	grantCmd.Flags().StringVar(&grant.IdentityID, "identity", "", "identity id (uuid)")
	grantCmd.Flags().StringVar(&grant.Role, "role", "", "role name")
	grantCmd.Flags().DurationVar(&grant.TTL, "ttl", 0, "optional assignment lifetime")
	grantCmd.Flags().BoolVar(&grant.JSONOutput, "json", false, "print the assignment as JSON")
	_ = grantCmd.MarkFlagRequired("identity")
	_ = grantCmd.MarkFlagRequired("role")

	var revoke RevokeOptions
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "End the active assignment of an identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRolesCLI(cmd.Context(), func(c *RolesCLI) int {
				revoke.Stdout, revoke.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
				return c.RevokeCommand(cmd.Context(), revoke)
			})
		},
	}
	revokeCmd.Flags().StringVar(&revoke.IdentityID, "identity", "", "identity id (uuid)")
	_ = revokeCmd.MarkFlagRequired("identity")

	cmd.AddCommand(grantCmd, revokeCmd)
	return cmd
}

func withRolesCLI(ctx context.Context, run func(*RolesCLI) int) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: 2})
	if err != nil {
		return err
	}
	defer pool.Close()
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	roleCache := auth.NewCachedRoleStore(auth.NewPGRoleStore(pool), client, cfg.RoleCacheTTL, logger)
	if code := run(NewRolesCLI(roles.NewRepository(pool), roleCache)); code != 0 {
		return exitCodeError(code)
	}
	return nil
}
