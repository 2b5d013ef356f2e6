package bootstrap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dropDatabas3/camguard/internal/security/password"
)

// PromptCredentials pide username y password por terminal (password oculta,
// con confirmación). La usa el comando `camguard bootstrap` cuando no hay
// credenciales configuradas.
func PromptCredentials(in *os.File, out io.Writer, policy password.Policy) (username, plain string, err error) {
	if !term.IsTerminal(int(in.Fd())) {
		return "", "", errors.New("stdin is not a terminal; set FIRST_ADMIN_USERNAME and FIRST_ADMIN_PASSWORD")
	}
	reader := bufio.NewReader(in)

	fmt.Fprint(out, "Admin username (email): ")
	username, err = reader.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	username = password.NormalizeUsername(username)
	if !password.ValidEmail(username) {
		return "", "", fmt.Errorf("invalid email %q", username)
	}

	fmt.Fprint(out, "Admin password: ")
	pw, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", "", err
	}
	if ok, reasons := policy.Validate(string(pw)); !ok {
		return "", "", fmt.Errorf("password rejected: %s", strings.Join(reasons, ", "))
	}

	fmt.Fprint(out, "Confirm password: ")
	confirm, err := term.ReadPassword(int(in.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", "", err
	}
	if string(pw) != string(confirm) {
		return "", "", errors.New("passwords do not match")
	}
	return username, string(pw), nil
}
