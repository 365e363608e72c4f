package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/halcyonline/halcyon/internal/account"
	"github.com/halcyonline/halcyon/internal/cli/output"
	"github.com/halcyonline/halcyon/internal/cli/prompt"
	"github.com/halcyonline/halcyon/pkg/config"
)

var (
	accountsPath   string
	accountsFormat string
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect and prepare account files",
	Long: `Work with the directory of account files the server authenticates
against. Accounts are TOML files, one per login, holding a bcrypt
password hash and a permission set.`,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE:  runAccountsList,
}

var accountsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account interactively",
	Long: `Prompt for login, display name, password and a permission preset,
then write the account file into the accounts directory.`,
	RunE: runAccountsCreate,
}

var accountsHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a password for an account file",
	Long: `Prompt for a password and print the bcrypt hash to paste into the
'password' field of an account file.`,
	RunE: runAccountsHash,
}

func init() {
	accountsCmd.PersistentFlags().StringVar(&accountsPath, "path", "", "Accounts directory (default: from config)")
	accountsListCmd.Flags().StringVar(&accountsFormat, "format", "table", "Output format (table, json, yaml)")
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsCreateCmd)
	accountsCmd.AddCommand(accountsHashCmd)
}

// accountsDir resolves the accounts directory from the flag or config.
func accountsDir() (string, error) {
	if accountsPath != "" {
		return accountsPath, nil
	}
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	return cfg.Accounts.Path, nil
}

// accountSummary is the structured form of one list row.
type accountSummary struct {
	Login       string   `json:"login" yaml:"login"`
	Name        string   `json:"name" yaml:"name"`
	HasPassword bool     `json:"has_password" yaml:"has_password"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	path, err := accountsDir()
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(accountsFormat)
	if err != nil {
		return err
	}

	store, err := account.NewStore(path, false)
	if err != nil {
		return fmt.Errorf("open accounts directory: %w", err)
	}

	accounts := store.All()
	if len(accounts) == 0 && format == output.FormatTable {
		fmt.Printf("No accounts found in %s\n", path)
		return nil
	}

	printer := output.NewPrinter(os.Stdout, format)

	if format == output.FormatTable {
		table := output.NewTableData("LOGIN", "NAME", "PASSWORD", "PERMISSIONS")
		for _, a := range accounts {
			password := "set"
			if a.Identity.Password == "" {
				password = "empty"
			}
			table.AddRow(a.Identity.Login, a.Identity.Name, password,
				strings.Join(permissionFlags(&a.Permissions), ", "))
		}
		return printer.Print(table)
	}

	summaries := make([]accountSummary, 0, len(accounts))
	for _, a := range accounts {
		summaries = append(summaries, accountSummary{
			Login:       a.Identity.Login,
			Name:        a.Identity.Name,
			HasPassword: a.Identity.Password != "",
			Permissions: permissionFlags(&a.Permissions),
		})
	}
	return printer.Print(summaries)
}

// permissionFlags renders a permission set as a short flag list.
func permissionFlags(p *account.Permissions) []string {
	var flags []string
	if p.Misc.Admin {
		flags = append(flags, "admin")
	}
	if p.File.Download {
		flags = append(flags, "download")
	}
	if p.File.Upload {
		flags = append(flags, "upload")
	}
	if p.File.Delete || p.File.Rename || p.File.MakeFolder {
		flags = append(flags, "manage-files")
	}
	if p.News.Post {
		flags = append(flags, "post-news")
	}
	if p.Chat.Send {
		flags = append(flags, "chat")
	}
	if p.User.Disconnect {
		flags = append(flags, "disconnect")
	}
	if p.User.Broadcast {
		flags = append(flags, "broadcast")
	}
	if len(flags) == 0 {
		flags = append(flags, "none")
	}
	return flags
}

func runAccountsCreate(cmd *cobra.Command, args []string) error {
	path, err := accountsDir()
	if err != nil {
		return err
	}

	login, err := prompt.InputWithValidation("Login", validateLogin)
	if err != nil {
		return err
	}

	name, err := prompt.Input("Display name", login)
	if err != nil {
		return err
	}

	var hash string
	withPassword, err := prompt.Confirm("Set a password", true)
	if err != nil {
		return err
	}
	if withPassword {
		password, err := prompt.PasswordWithConfirmation("Password", "Confirm password", 1)
		if err != nil {
			return err
		}
		hash, err = account.HashPassword(password)
		if err != nil {
			return err
		}
	}

	preset, err := prompt.Select("Permission preset", []prompt.SelectOption{
		{Label: "Member", Value: "member", Description: "chat, news, download and upload"},
		{Label: "Admin", Value: "admin", Description: "everything, including disconnects and broadcasts"},
		{Label: "Read-only", Value: "readonly", Description: "chat, read news and download only"},
	})
	if err != nil {
		return err
	}

	acct := presetAccount(preset)
	acct.Identity = account.Identity{Name: name, Login: login, Password: hash}

	target := filepath.Join(path, login+".toml")
	if _, err := os.Stat(target); err == nil {
		ok, err := prompt.Confirm(fmt.Sprintf("Account file %s exists, overwrite", target), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Aborted.")
			return nil
		}
	}

	data, err := toml.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0600); err != nil {
		return fmt.Errorf("write account file: %w", err)
	}

	fmt.Printf("Account written to %s\n", target)
	return nil
}

// validateLogin keeps logins safe to use as file names.
func validateLogin(login string) error {
	if login == "" {
		return fmt.Errorf("login must not be empty")
	}
	for _, r := range login {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("login may only contain lowercase letters, digits, '-' and '_'")
		}
	}
	return nil
}

// presetAccount returns the permission template for a preset name.
func presetAccount(preset string) *account.Account {
	acct := &account.Account{
		Permissions: account.Permissions{
			File: account.FilePermissions{Download: true},
			News: account.NewsPermissions{Read: true},
			Chat: account.ChatPermissions{Send: true, SetSubject: true},
			User: account.UserPermissions{GetInfo: true},
			Misc: account.MiscPermissions{UseAnyName: true},
		},
	}
	switch preset {
	case "admin":
		acct.Permissions.File = account.FilePermissions{Download: true, Upload: true, Delete: true, Rename: true, MakeFolder: true}
		acct.Permissions.News.Post = true
		acct.Permissions.User = account.UserPermissions{Disconnect: true, Broadcast: true, GetInfo: true}
		acct.Permissions.Misc.Admin = true
	case "member":
		acct.Permissions.File.Upload = true
		acct.Permissions.News.Post = true
	}
	return acct
}

func runAccountsHash(cmd *cobra.Command, args []string) error {
	password, err := prompt.PasswordWithConfirmation("Password", "Confirm password", 1)
	if err != nil {
		return err
	}

	hash, err := account.HashPassword(password)
	if err != nil {
		return err
	}

	fmt.Println(hash)
	return nil
}
