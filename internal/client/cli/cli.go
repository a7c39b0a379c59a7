package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	clientapi "github.com/iudanet/projecthub/internal/client/api"
	"github.com/iudanet/projecthub/internal/client/iocli"
	"github.com/iudanet/projecthub/internal/client/storage"
	"github.com/iudanet/projecthub/internal/clock"
	"github.com/iudanet/projecthub/pkg/api"
)

// PasswordEnv задает пароль для неинтерактивного запуска
const PasswordEnv = "PROJECTHUB_PASSWORD"

// ErrNotLoggedIn is returned by commands that need a stored session
var ErrNotLoggedIn = errors.New("not logged in, run 'projecthub login' first")

// APIClient is the server API used by the commands
type APIClient interface {
	BaseURL() string
	Register(ctx context.Context, req api.RegisterRequest) (*clientapi.AuthResult, error)
	Login(ctx context.Context, req api.LoginRequest) (*clientapi.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*clientapi.AuthResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	Me(ctx context.Context, accessToken string) (*api.UserResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, password string) error
}

// Passwords описывает неинтерактивные источники пароля
type Passwords struct {
	FromFile string
	FromArgs string
}

type Cli struct {
	io        iocli.IO
	apiClient APIClient
	store     storage.SessionStorage
	clock     clock.Clock
	passwords Passwords
}

func New(terminal iocli.IO, apiClient APIClient, store storage.SessionStorage, clk clock.Clock, passwords Passwords) *Cli {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cli{
		io:        terminal,
		apiClient: apiClient,
		store:     store,
		clock:     clk,
		passwords: passwords,
	}
}

// Run выполняет команду
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "register":
		return c.runRegister(ctx, args)
	case "login":
		return c.runLogin(ctx, args)
	case "logout":
		return c.runLogout(ctx)
	case "refresh":
		return c.runRefresh(ctx)
	case "whoami":
		return c.runWhoami(ctx)
	case "status":
		return c.runStatus(ctx)
	case "reset-password":
		return c.runResetPassword(ctx, args)
	case "confirm-reset":
		return c.runConfirmReset(ctx, args)
	default:
		PrintUsage(c.io)
		return fmt.Errorf("unknown command: %s", command)
	}
}

// getPassword retrieves the password from various sources with priority:
// 1. Environment variable PROJECTHUB_PASSWORD
// 2. File specified in Passwords.FromFile
// 3. Command-line parameter
// 4. Interactive prompt (fallback)
func (c *Cli) getPassword(prompt string) (string, error) {
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, nil
	}

	if c.passwords.FromFile != "" {
		content, err := os.ReadFile(c.passwords.FromFile)
		if err != nil {
			return "", fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", fmt.Errorf("password file is empty")
		}
		return password, nil
	}

	if c.passwords.FromArgs != "" {
		return c.passwords.FromArgs, nil
	}

	password, err := c.io.ReadPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	return password, nil
}

// interactivePassword reports whether the password will be prompted for
func (c *Cli) interactivePassword() bool {
	return os.Getenv(PasswordEnv) == "" && c.passwords.FromFile == "" && c.passwords.FromArgs == ""
}

// newPassword reads a password and, when prompting, its confirmation
func (c *Cli) newPassword(prompt string) (string, error) {
	password, err := c.getPassword(prompt)
	if err != nil {
		return "", err
	}
	if !c.interactivePassword() {
		return password, nil
	}

	confirm, err := c.io.ReadPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

func (c *Cli) session(ctx context.Context) (*storage.Session, error) {
	session, err := c.store.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// saveResult сохраняет выданные сервером токены как текущую сессию
func (c *Cli) saveResult(ctx context.Context, res *clientapi.AuthResult) (*storage.Session, error) {
	session := &storage.Session{
		ServerURL:        c.apiClient.BaseURL(),
		UserID:           res.User.ID,
		Email:            res.User.Email,
		Name:             res.User.Name,
		AccessToken:      res.AccessToken,
		AccessExpiresAt:  res.AccessExpiresAt,
		RefreshToken:     res.RefreshToken,
		RefreshExpiresAt: res.RefreshExpiresAt,
	}
	if err := c.store.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

func (c *Cli) printExpiry(label string, at time.Time) {
	remaining := at.Sub(c.clock.Now())
	if remaining > 0 {
		c.io.Printf("%s: %s (in %s)\n", label, at.Format(time.RFC3339), remaining.Round(time.Second))
		return
	}
	c.io.Printf("%s: %s (expired)\n", label, at.Format(time.RFC3339))
}

func PrintUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `ProjectHub Client

Usage:
  projecthub [OPTIONS] COMMAND [ARGS]

Options:
  -version               Show version information
  -server URL            Server URL (default: http://localhost:8080)
  -db PATH               Path to local session database (default: projecthub-client.db)
  -password PASSWORD     Password (not recommended, use env var or file)
  -password-file PATH    Path to file containing the password

Password Priority (highest to lowest):
  1. PROJECTHUB_PASSWORD environment variable
  2. -password-file (file path)
  3. -password (command line)
  4. Interactive prompt (fallback)

Commands:
  register [-remember]        Register a new account and log in
  login [-remember]           Log in; -remember also stores a refresh token
  logout                      Revoke the session on the server and delete it locally
  refresh                     Get a new access token with the stored refresh token
  whoami                      Show the account of the current session
  status                      Show the local session state
  reset-password [EMAIL]      Request a password reset email
  confirm-reset [TOKEN]       Set a new password with the token from the email

Examples:
  projecthub login -remember
  projecthub whoami
  projecthub -server https://hub.example.com reset-password ann@example.com
`)
}
