package payhoa

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/hoaboard/treasurer/internal/logging"
)

// Credential environment variables and the 1Password item the login is
// stored under.
const (
	EnvEmail    = "PAYHOA_EMAIL"
	EnvPassword = "PAYHOA_PASSWORD"

	opEmailRef    = "op://Private/app.payhoa.com/username"
	opPasswordRef = "op://Private/app.payhoa.com/password"
)

// Credentials hold a PayHOA login. They exist only for the duration of a
// login request and are never persisted; the email appears in logs only as
// a hash, the password never.
type Credentials struct {
	Email    string
	Password string
}

// CredentialResolver resolves login credentials without network I/O.
// *CredentialSource is the production implementation.
type CredentialResolver interface {
	Resolve(ctx context.Context) (Credentials, error)
}

// CredentialSource reads credentials from the environment, falling back to
// the 1Password CLI when the variables are unset.
type CredentialSource struct {
	opPath string
	logger logging.Logger

	lookupEnv func(string) string
	runOp     func(ctx context.Context, opPath, ref string) (string, error)
}

// NewCredentialSource builds a source bound to the current environment. The
// op binary is located once at construction; its absence only matters if
// the environment variables are missing when Resolve is called.
func NewCredentialSource(logger logging.Logger) *CredentialSource {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	opPath, err := exec.LookPath("op")
	if err != nil {
		opPath = ""
	}
	return &CredentialSource{
		opPath:    opPath,
		logger:    logger,
		lookupEnv: os.Getenv,
		runOp:     runOpRead,
	}
}

// Available reports whether some credential source exists, without invoking
// it. Commands use this to fail fast on missing configuration before any
// network activity.
func (s *CredentialSource) Available() bool {
	if s.lookupEnv(EnvEmail) != "" && s.lookupEnv(EnvPassword) != "" {
		return true
	}
	return s.opPath != ""
}

// Resolve returns credentials from the environment when both variables are
// set, otherwise from 1Password.
func (s *CredentialSource) Resolve(ctx context.Context) (Credentials, error) {
	email := s.lookupEnv(EnvEmail)
	password := s.lookupEnv(EnvPassword)
	if email != "" && password != "" {
		s.logger.Debug("using credentials from environment", logging.KeyComponent, "credentials")
		return Credentials{Email: email, Password: password}, nil
	}

	if s.opPath == "" {
		return Credentials{}, &Error{
			Kind: KindCredentialSource,
			Op:   "credentials",
			Err: fmt.Errorf("%s/%s not set and 1Password CLI (op) not found in PATH",
				EnvEmail, EnvPassword),
		}
	}

	s.logger.Debug("resolving credentials via 1Password CLI", logging.KeyComponent, "credentials")
	email, err := s.runOp(ctx, s.opPath, opEmailRef)
	if err != nil {
		return Credentials{}, &Error{Kind: KindCredentialSource, Op: "credentials", Err: err}
	}
	password, err = s.runOp(ctx, s.opPath, opPasswordRef)
	if err != nil {
		return Credentials{}, &Error{Kind: KindCredentialSource, Op: "credentials", Err: err}
	}
	if email == "" || password == "" {
		return Credentials{}, &Error{
			Kind: KindCredentialSource,
			Op:   "credentials",
			Err:  fmt.Errorf("1Password returned an empty credential"),
		}
	}
	return Credentials{Email: email, Password: password}, nil
}

// runOpRead shells out to `op read <ref>` and returns the trimmed output.
func runOpRead(ctx context.Context, opPath, ref string) (string, error) {
	cmd := exec.CommandContext(ctx, opPath, "read", ref)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("op read %s: %s: %w", ref, msg, err)
		}
		return "", fmt.Errorf("op read %s: %w", ref, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
