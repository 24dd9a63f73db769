package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// consoleNotifier prints form feedback to the terminal
type consoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func (n *consoleNotifier) Success(msg string) { n.print("✓", msg) }
func (n *consoleNotifier) Info(msg string)    { n.print("i", msg) }
func (n *consoleNotifier) Error(msg string)   { n.print("✗", msg) }

func (n *consoleNotifier) print(prefix, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s %s\n", prefix, msg)
}

// transcript stands in for a microphone: it "hears" the sentence given on the command line
type transcript string

func (t transcript) Listen(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.TrimSpace(string(t)), nil
}
