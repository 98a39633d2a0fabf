package main

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"rollbook/internal/client"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

func main() {
	baseURL := os.Getenv("ROLLBOOK_URL")
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}
	cli := &commandLine{
		client: client.New(baseURL),
		token:  os.Getenv("ROLLBOOK_TOKEN"),
		out:    os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if !errors.Is(err, errHelp) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
