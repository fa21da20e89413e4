// Package shell is the storefront's interactive front end: one command per
// line, dispatched to the session operations, with failures reported
// through the centralized notice handler.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/freshcart/internal/domain"
	"github.com/utafrali/freshcart/internal/notify"
	"github.com/utafrali/freshcart/internal/session"
	"github.com/utafrali/freshcart/pkg/logger"
)

// Prompt is printed before each command is read.
const Prompt = "freshcart> "

// errQuit ends the read loop.
var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	args  int // minimum arguments
	run   func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":      {usage: "login <email> <password> [remember]", help: "sign in", args: 2, run: (*Shell).login},
		"register":   {usage: "register <name> <email> <password>", help: "create an account", args: 3, run: (*Shell).register},
		"me":         {usage: "me", help: "show the signed-in user", run: (*Shell).me},
		"categories": {usage: "categories", help: "list product categories", run: (*Shell).categories},
		"logout":     {usage: "logout", help: "sign out", run: (*Shell).logout},
		"forgot":     {usage: "forgot <email>", help: "request a password reset link", args: 1, run: (*Shell).forgot},
		"reset":      {usage: "reset <token> <password> <confirm>", help: "set a new password", args: 3, run: (*Shell).reset},
		"status":     {usage: "status", help: "show the session state without fetching", run: (*Shell).status},
		"focus":      {usage: "focus", help: "refetch stale data as on window focus", run: (*Shell).focus},
		"reconnect":  {usage: "reconnect", help: "refetch stale data as on reconnect", run: (*Shell).reconnect},
		"help":       {usage: "help", help: "list commands", run: (*Shell).help},
		"quit":       {usage: "quit", help: "leave the shell", run: (*Shell).quit},
	}
}

// Shell runs commands against a session.
type Shell struct {
	sess   *session.Context
	errs   *notify.Handler
	out    io.Writer
	logger *slog.Logger
}

// New creates a shell that writes results to out and reports errors
// through errs.
func New(sess *session.Context, errs *notify.Handler, out io.Writer, log *slog.Logger) *Shell {
	if log == nil {
		log = logger.Nop()
	}
	return &Shell{sess: sess, errs: errs, out: out, logger: log}
}

// Run reads commands from in until quit, end of input or ctx is done.
// It returns nil on quit or end of input.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		fmt.Fprint(s.out, Prompt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if errors.Is(s.Exec(ctx, line), errQuit) {
				return nil
			}
		}
	}
}

// Exec runs a single command line. Command failures are reported to the
// user and not returned; only quit is signalled back.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	if name == "exit" {
		name = "quit"
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(s.out, "unknown command %q, type help\n", name)
		return nil
	}
	if len(args) < cmd.args {
		fmt.Fprintf(s.out, "usage: %s\n", cmd.usage)
		return nil
	}

	ctx = logger.WithCorrelationID(ctx, uuid.NewString())
	err := cmd.run(s, ctx, args)
	if errors.Is(err, errQuit) {
		return err
	}
	if err != nil {
		s.errs.Handle(ctx, err)
	}
	return nil
}

func (s *Shell) login(ctx context.Context, args []string) error {
	creds := domain.LoginCredentials{Email: args[0], Password: args[1]}
	if len(args) > 2 && isRemember(args[2]) {
		creds.RememberMe = true
	}
	res, err := s.sess.Login(ctx, creds)
	if err != nil {
		return err
	}
	s.errs.Info(ctx, "Welcome back, "+res.User.DisplayName()+"!")
	return nil
}

func isRemember(arg string) bool {
	switch strings.ToLower(arg) {
	case "remember", "-r", "--remember", "true", "yes":
		return true
	}
	return false
}

func (s *Shell) register(ctx context.Context, args []string) error {
	res, err := s.sess.Register(ctx, domain.RegisterCredentials{
		Name:     args[0],
		Email:    args[1],
		Password: args[2],
	})
	if err != nil {
		return err
	}
	s.errs.Info(ctx, "Account created for "+res.User.DisplayName()+".")
	return nil
}

func (s *Shell) me(ctx context.Context, _ []string) error {
	u, err := s.sess.Me(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Fprintln(s.out, "not signed in")
		return nil
	}
	printUser(s.out, u)
	return nil
}

func printUser(w io.Writer, u *domain.User) {
	fmt.Fprintf(w, "%s <%s>\n", u.DisplayName(), u.Email)
	fmt.Fprintf(w, "  id:       %s\n", u.ID)
	fmt.Fprintf(w, "  role:     %s\n", u.Role)
	fmt.Fprintf(w, "  verified: %t\n", u.IsEmailVerified)
}

func (s *Shell) categories(ctx context.Context, _ []string) error {
	cats, err := s.sess.Categories(ctx)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		fmt.Fprintln(s.out, "no categories")
		return nil
	}
	for _, c := range cats {
		if c.Slug != "" {
			fmt.Fprintf(s.out, "%s (%s)\n", c.Name, c.Slug)
		} else {
			fmt.Fprintln(s.out, c.Name)
		}
	}
	return nil
}

func (s *Shell) logout(ctx context.Context, _ []string) error {
	err := s.sess.Logout(ctx)
	// The local session is gone even when the server call failed.
	s.errs.Info(ctx, "Signed out.")
	return err
}

func (s *Shell) forgot(ctx context.Context, args []string) error {
	res, err := s.sess.ForgotPassword(ctx, domain.ForgotPasswordRequest{Email: args[0]})
	if err != nil {
		return err
	}
	s.errs.Info(ctx, messageOr(res, "If that address is registered, a reset link is on its way."))
	return nil
}

func (s *Shell) reset(ctx context.Context, args []string) error {
	res, err := s.sess.ResetPassword(ctx, domain.ResetPasswordRequest{
		Token:           args[0],
		NewPassword:     args[1],
		ConfirmPassword: args[2],
	})
	if err != nil {
		return err
	}
	s.errs.Info(ctx, messageOr(res, "Password updated. You can sign in now."))
	return nil
}

func messageOr(res *domain.MessageResponse, fallback string) string {
	if res != nil && res.Message != "" {
		return res.Message
	}
	return fallback
}

func (s *Shell) status(ctx context.Context, _ []string) error {
	fmt.Fprintf(s.out, "status:  %s\n", s.sess.Status())
	fmt.Fprintf(s.out, "user:    %s\n", s.sess.DisplayName())
	fmt.Fprintf(s.out, "admin:   %t\n", s.sess.IsAdmin())
	fmt.Fprintf(s.out, "loading: %t\n", s.sess.Loading())
	if err := s.sess.LastError(); err != nil {
		fmt.Fprintf(s.out, "last error: %s\n", notify.Message(err))
	}

	claims, held, err := s.sess.Credential(ctx)
	if err != nil {
		return err
	}
	switch {
	case !held:
		fmt.Fprintln(s.out, "credential: none")
	case claims.ExpiresAt.IsZero():
		fmt.Fprintf(s.out, "credential: held%s\n", subjectSuffix(claims.Subject))
	case claims.Expired(time.Now()):
		fmt.Fprintf(s.out, "credential: expired %s%s\n", claims.ExpiresAt.UTC().Format(time.RFC3339), subjectSuffix(claims.Subject))
	default:
		fmt.Fprintf(s.out, "credential: valid until %s%s\n", claims.ExpiresAt.UTC().Format(time.RFC3339), subjectSuffix(claims.Subject))
	}
	return nil
}

func subjectSuffix(subject string) string {
	if subject == "" {
		return ""
	}
	return " (subject " + subject + ")"
}

func (s *Shell) focus(ctx context.Context, _ []string) error {
	return s.sess.Cache.Focus(ctx)
}

func (s *Shell) reconnect(ctx context.Context, _ []string) error {
	return s.sess.Cache.Reconnect(ctx)
}

func (s *Shell) help(_ context.Context, _ []string) error {
	order := []string{"login", "register", "me", "categories", "logout", "forgot", "reset", "status", "focus", "reconnect", "help", "quit"}
	for _, name := range order {
		c := commands[name]
		fmt.Fprintf(s.out, "  %-38s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *Shell) quit(_ context.Context, _ []string) error {
	return errQuit
}
