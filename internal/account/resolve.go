// Package account picks which linked Google account serves a request.
package account

import (
	"errors"

	"github.com/teemow/driveproxy/internal/credstore"
)

var (
	// ErrUnresolved means none of a file's owners is linked to the caller.
	ErrUnresolved = errors.New("no linked account owns the file")

	// ErrNoHome means the caller has no account usable for folder operations.
	ErrNoHome = errors.New("no home account")

	// ErrNotLinked means an explicitly selected account is not linked.
	ErrNotLinked = errors.New("account is not linked")
)

// Resolve returns the linked account of the first owner email, in owner
// order, that is linked to the caller. Emails compare case-insensitively.
func Resolve(owners []string, linked []credstore.LinkedAccount) (credstore.LinkedAccount, error) {
	if len(owners) == 0 || len(linked) == 0 {
		return credstore.LinkedAccount{}, ErrUnresolved
	}

	byEmail := make(map[string]credstore.LinkedAccount, len(linked))
	for _, a := range linked {
		key := credstore.NormalizeEmail(a.Email)
		if _, dup := byEmail[key]; key != "" && !dup {
			byEmail[key] = a
		}
	}

	for _, o := range owners {
		if a, ok := byEmail[credstore.NormalizeEmail(o)]; ok {
			return a, nil
		}
	}
	return credstore.LinkedAccount{}, ErrUnresolved
}

// Home returns the account flagged as home. Without a flag, a single linked
// account is the home account; otherwise ErrNoHome is returned.
func Home(linked []credstore.LinkedAccount) (credstore.LinkedAccount, error) {
	for _, a := range linked {
		if a.Home {
			return a, nil
		}
	}
	if len(linked) == 1 {
		return linked[0], nil
	}
	return credstore.LinkedAccount{}, ErrNoHome
}

// Select returns the linked account with the given email, or the home
// account when email is empty.
func Select(linked []credstore.LinkedAccount, email string) (credstore.LinkedAccount, error) {
	key := credstore.NormalizeEmail(email)
	if key == "" {
		return Home(linked)
	}
	for _, a := range linked {
		if credstore.NormalizeEmail(a.Email) == key {
			return a, nil
		}
	}
	return credstore.LinkedAccount{}, ErrNotLinked
}
