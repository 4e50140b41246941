package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/cos/gravyvalet/pkg/errors"
)

// KeyringResolver resolves keyring://service/account references against
// the OS credential store, the backend the `gravyvalet services` CLI uses
// on an operator's own workstation rather than a shared secrets backend.
type KeyringResolver struct{}

func (KeyringResolver) Resolve(_ context.Context, rest string) (string, error) {
	service, account, ok := strings.Cut(rest, "/")
	if !ok {
		return "", errors.NewInvalidArguments(fmt.Sprintf("keyring reference %q must be service/account", rest), nil)
	}
	v, err := keyring.Get(service, account)
	if err != nil {
		return "", errors.NewCredentialError(fmt.Sprintf("reading keyring entry %s/%s", service, account), err)
	}
	return v, nil
}
