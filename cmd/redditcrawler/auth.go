package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"redditcrawler/pkg/auth"
	"redditcrawler/pkg/ui"
)

var authYes bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage site credentials",
	Long: `Manage the credentials of the reddit API and the mongo document store.

Credentials are looked up in:
  - The credentials JSON file (credentials.file, read-only)
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - REDDITCRAWLER_<SITE>_<FIELD> environment variables

Never share your credentials or config files!`,
}

var authSetCmd = &cobra.Command{
	Use:       "set <site>",
	Short:     "Store credentials for a site",
	Long:      `Prompt for every field of a site and store them. Secret fields are read without echo.`,
	Example:   "  redditcrawler auth set reddit\n  redditcrawler auth set mongo",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{auth.SiteReddit, auth.SiteMongo},
	RunE:      runAuthSet,
}

var authShowCmd = &cobra.Command{
	Use:   "show <site>",
	Short: "Show stored credentials with secrets masked",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthShow,
}

var authDeleteCmd = &cobra.Command{
	Use:   "delete <site>",
	Short: "Remove stored credentials for a site",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthDelete,
}

var authSealCmd = &cobra.Command{
	Use:   "seal <credentials.json>",
	Short: "Store an encrypted copy of a credentials file",
	Long: `Validate every site of a plain credentials file and seal them into the
encrypted store. The plain file is not modified; once sealed it can be
removed and credentials.file left empty.

The passphrase is read from REDDITCRAWLER_PASSPHRASE, or generated and kept
next to the sealed file.`,
	Example: "  redditcrawler auth seal config/credentials.json",
	Args:    cobra.ExactArgs(1),
	RunE:    runAuthSeal,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authSealCmd)
	authCmd.AddCommand(authSetCmd)
	authCmd.AddCommand(authShowCmd)
	authCmd.AddCommand(authDeleteCmd)
	authDeleteCmd.Flags().BoolVarP(&authYes, "yes", "y", false, "do not ask for confirmation")
}

func credentialManager() (*auth.Manager, error) {
	a, err := loadApp(nil)
	if err != nil {
		return nil, err
	}
	return a.credentials()
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	site := strings.ToLower(args[0])
	fields := auth.PromptFields(site)
	if fields == nil {
		return fmt.Errorf("unknown site %q (expected %s or %s)", site, auth.SiteReddit, auth.SiteMongo)
	}

	manager, err := credentialManager()
	if err != nil {
		return err
	}

	auth.ShowCredentialsGuide()

	reader := bufio.NewReader(os.Stdin)
	account := &auth.Account{Site: site}
	if existing, err := manager.Retrieve(site); err == nil && existing != nil {
		fmt.Printf("Credentials for '%s' already exist. Update them? (y/N): ", site)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
		account = existing
	}

	fmt.Println("Press Enter to keep the current value.")
	for _, field := range fields {
		current := account.Get(field)
		hint := current
		if auth.SecretFields[field] && current != "" {
			hint = "hidden"
		}
		if hint != "" {
			fmt.Printf("%s [%s]: ", field, hint)
		} else {
			fmt.Printf("%s: ", field)
		}

		var value string
		if auth.SecretFields[field] {
			value, err = readPassword(reader)
		} else {
			value, err = reader.ReadString('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read %s: %w", field, err)
		}
		if value = strings.TrimSpace(value); value != "" {
			account.Set(field, value)
		}
	}

	if err := manager.Store(account); err != nil {
		return err
	}
	ui.PrintSuccess("Credentials stored for " + site)
	if auth.IsKeyringAvailable() {
		fmt.Println("   Stored in the system keychain")
	}
	return nil
}

func runAuthShow(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return err
	}
	account, err := manager.Retrieve(strings.ToLower(args[0]))
	if err != nil {
		return err
	}

	safe := auth.SanitizeAccount(account)
	ui.PrintHighlight("Credentials: " + safe.Site)
	for _, k := range safe.Keys() {
		ui.PrintInfo("  "+k, safe.Get(k))
	}
	if !safe.LastModified.IsZero() {
		ui.PrintInfo("  modified", humanize.Time(safe.LastModified))
	}
	if err := account.Validate(); err != nil {
		ui.PrintWarning("Incomplete", err.Error())
	}
	return nil
}

func runAuthDelete(cmd *cobra.Command, args []string) error {
	site := strings.ToLower(args[0])
	manager, err := credentialManager()
	if err != nil {
		return err
	}

	if !authYes {
		fmt.Printf("Remove credentials for '%s'? (y/N): ", site)
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return nil
		}
	}

	if err := manager.Delete(site); err != nil {
		return err
	}
	ui.PrintSuccess("Credentials removed: " + site)
	return nil
}

func runAuthSeal(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	path, err := auth.EncryptedStorePath()
	if err != nil {
		return err
	}
	store, err := auth.NewEncryptedFileStore(path)
	if err != nil {
		return err
	}

	sites, err := store.SealFile(args[0])
	if err != nil {
		return fmt.Errorf("credentials not sealed: %w", err)
	}
	a.log.InfoWithFields("sealed credentials", map[string]interface{}{
		"source": args[0],
		"sites":  sites,
	})
	ui.PrintSuccess(fmt.Sprintf("Sealed %s into %s", strings.Join(sites, ", "), store.Path()))
	return nil
}

// readPassword reads a secret from stdin without echoing when stdin is a
// terminal, and falls back to a plain line read otherwise.
func readPassword(reader *bufio.Reader) (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}
	return reader.ReadString('\n')
}
