package submit

import (
	"context"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/TesteGruas/Sistema-Gerenciamento-Gruas-sub017/internal/errors"
)

// TokenSource yields the bearer credential for one submission attempt.
// Implementations are called on every attempt so a rotated token is picked
// up without restarting the engine.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken is a fixed credential.
type StaticToken string

// Token returns the token, or ErrSubmitNoToken when empty.
func (s StaticToken) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", apperrors.New(apperrors.ErrSubmitNoToken, "no access token configured")
	}
	return strings.TrimSpace(string(s)), nil
}

// FileToken reads the credential from a file each time it is asked, the
// way the host app refreshes its session token on disk.
type FileToken string

// Token reads and trims the file content.
func (f FileToken) Token(context.Context) (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrSubmitNoToken, fmt.Sprintf("failed to read token file %s", string(f)), err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", apperrors.New(apperrors.ErrSubmitNoToken, fmt.Sprintf("token file %s is empty", string(f)))
	}
	return token, nil
}
