package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"library-web/library"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var (
	userRole  string
	userName  string
	userEmail string
)

var userAddCmd = &cobra.Command{
	Use:   "add <userid>",
	Short: "Create an account; the password is prompted for",
	Long: `Create an account. This is the way to create librarian accounts while
self-registration of librarians is disabled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		manager, err := openManager(cfg)
		if err != nil {
			return err
		}
		defer manager.Close()

		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}
		id, err := manager.Register(cmd.Context(), library.RegisterInput{
			Username: args[0],
			Password: password,
			Role:     userRole,
			Name:     userName,
			Email:    userEmail,
		})
		if err != nil {
			return err
		}
		fmt.Println(successStyle.Render("created"), fmt.Sprintf("%s %q (id %d)", userRole, args[0], id))
		return nil
	},
}

var userResetCmd = &cobra.Command{
	Use:   "reset-password <id>",
	Short: "Set a new password for the account with the given numeric id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		manager, err := openManager(cfg)
		if err != nil {
			return err
		}
		defer manager.Close()

		password, err := readPassword("New password: ")
		if err != nil {
			return err
		}
		if err := manager.ResetPassword(cmd.Context(), id, password); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("password updated"), "for user", id)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", library.RoleMember.String(), "Librarian or Member")
	userAddCmd.Flags().StringVar(&userName, "name", "", "display name")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	_ = userAddCmd.MarkFlagRequired("name")
	_ = userAddCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userAddCmd, userResetCmd)
}
