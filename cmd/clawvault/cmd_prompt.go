package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/readline"

	"github.com/sipeed/clawvault/pkg/wallet"
)

// promptSecret reads a line with input masking.
func promptSecret(prompt string) (string, error) {
	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt:     prompt,
		EnableMask: true,
		MaskRune:   '*',
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()

	line, err := rl.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func promptPIN() (string, error) {
	pin, err := promptSecret("PIN: ")
	if err != nil {
		return "", err
	}
	if err := wallet.CheckPIN(pin); err != nil {
		return "", err
	}
	return pin, nil
}

// promptNewPIN asks for a PIN twice when setting one. An empty entry
// generates a random PIN instead.
func promptNewPIN() (string, error) {
	pin, err := promptSecret("New PIN (4 digits, empty to generate): ")
	if err != nil {
		return "", err
	}
	if pin == "" {
		generated, err := wallet.GeneratePIN()
		if err != nil {
			return "", err
		}
		fmt.Printf("Generated PIN: %s (needed for every operation, write it down)\n", generated)
		return generated, nil
	}
	if err := wallet.CheckPIN(pin); err != nil {
		return "", err
	}

	confirm, err := promptSecret("Confirm PIN: ")
	if err != nil {
		return "", err
	}
	if pin != confirm {
		return "", errors.New("PINs do not match")
	}
	return pin, nil
}
