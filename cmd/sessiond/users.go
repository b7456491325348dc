package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/config"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/password"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	var useBcrypt bool
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a password hash for provisioning users",
		Long: `Hash a password with the configured argon2id parameters. The password
is read from the first line of stdin when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := secretFromArgs(cmd, args)
			if err != nil {
				return err
			}

			var hash string
			if useBcrypt {
				bc, err := password.NewBcrypt(0)
				if err != nil {
					return err
				}
				hash, err = bc.Hash(secret)
				if err != nil {
					return oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
				}
			} else {
				cfg, err := config.Load(configFile, nil)
				if err != nil {
					return err
				}
				hasher, err := goSession.NewPasswordHasher(passwordConfig(cfg))
				if err != nil {
					return oops.Code("CONFIG_INVALID").With("field", "password").Wrap(err)
				}
				hash, err = hasher.Hash(secret)
				if err != nil {
					return oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useBcrypt, "bcrypt", false, "produce a bcrypt hash instead of argon2id")
	return cmd
}

// NewUserAddCmd creates the useradd subcommand.
func NewUserAddCmd() *cobra.Command {
	var (
		user   goSession.UserRecord
		secret string
	)
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create or replace a user in the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user.Username == "" || user.Email == "" || secret == "" {
				return oops.Code("USER_INVALID").Errorf("--username, --email and --password are required")
			}
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			logger := logging.Setup("sessiond", version, cfg.Log.Format, cfg.Log.Level, cmd.ErrOrStderr())

			hasher, err := goSession.NewPasswordHasher(passwordConfig(cfg))
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("field", "password").Wrap(err)
			}
			s, closeStore, err := openStore(cmd.Context(), cfg.Store, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			created, err := createUser(cmd.Context(), s, hasher, user, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), created.ID)
			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringVar(&user.ID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&user.Username, "username", "", "username")
	cmd.Flags().StringVar(&user.Email, "email", "", "email address")
	cmd.Flags().StringVar(&user.DisplayName, "display-name", "", "display name")
	cmd.Flags().StringSliceVar(&user.Roles, "role", nil, "role (repeatable)")
	cmd.Flags().StringVar(&secret, "password", "", "password")
	return cmd
}

func secretFromArgs(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		if err != nil {
			return "", oops.Code("PASSWORD_MISSING").Wrap(err)
		}
		return "", oops.Code("PASSWORD_MISSING").Errorf("no password on stdin")
	}
	return line, nil
}

// passwordConfig resolves the hashing parameters without requiring a signing secret.
func passwordConfig(cfg config.Config) goSession.PasswordConfig {
	out := goSession.DefaultConfig().Password
	out.Memory = cfg.Password.Memory
	out.Time = cfg.Password.Time
	out.Parallelism = cfg.Password.Parallelism
	out.AllowBcrypt = cfg.Password.AllowBcrypt
	out.BcryptCost = cfg.Password.BcryptCost
	out.DecoyAlgorithm = cfg.Password.DecoyAlgorithm
	return out
}
