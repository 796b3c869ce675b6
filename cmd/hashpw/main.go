// Command hashpw prints an Argon2id hash suitable for PILGRIM_ADMIN_PASSWORD_HASH.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/cryptox"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var hasherParams = cryptox.DefaultParams

var errMismatch = errors.New("passwords do not match")

func main() {
	if err := run(int(os.Stdin.Fd()), os.Stdout, os.Stderr); err != nil {
		log.Fatalf("%v", err)
	}
}

func prompt(fd int, w io.Writer, text string) ([]byte, error) {
	if _, err := fmt.Fprint(w, text); err != nil {
		return nil, err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	return pw, err
}

func run(fd int, out, prompts io.Writer) error {
	pw, err := prompt(fd, prompts, "Admin password: ")
	defer common.WipeByteArray(pw)
	if err != nil {
		return err
	}
	if len(pw) == 0 {
		return errors.New("empty password")
	}
	again, err := prompt(fd, prompts, "Repeat password: ")
	defer common.WipeByteArray(again)
	if err != nil {
		return err
	}
	if !bytes.Equal(pw, again) {
		return errMismatch
	}

	h, err := cryptox.NewHasher(hasherParams)
	if err != nil {
		return err
	}
	hash, err := h.Hash(string(pw))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, hash)
	return err
}
