package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// confirm asks a yes/no question. Without a terminal it refuses, so
// destructive commands need an explicit --yes in scripts.
func confirm(question string) (bool, error) {
	if !interactive() {
		return false, errors.New("refusing to continue without confirmation (use --yes)")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(question).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// credentials fills in whichever of username and password is empty,
// prompting on the terminal.
func credentials(username, password string) (string, string, error) {
	if username != "" && password != "" {
		return username, password, nil
	}
	if !interactive() {
		return "", "", errors.New("--username and --password are required when stdin is not a terminal")
	}

	var fields []huh.Field
	if username == "" {
		fields = append(fields, huh.NewInput().
			Title("Username").
			Value(&username).
			Validate(func(s string) error {
				if s == "" {
					return errors.New("username is required")
				}
				return nil
			}))
	}
	if password == "" {
		fields = append(fields, huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", "", fmt.Errorf("login cancelled")
		}
		return "", "", err
	}
	return username, password, nil
}
