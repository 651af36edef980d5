// Package command parses and represents the slash-prefixed commands the
// core accepts from user input and remote viewers (§6).
package command

import (
	"fmt"
	"strings"
)

// Kind identifies which command was parsed.
type Kind int

const (
	KindSend Kind = iota
	KindDisconnect
	KindReload
	KindQuit
	KindWorlds
	KindConnections
	KindActions
	KindInvoke
)

// Command is a parsed slash command (or a plain line of text, which is
// an implicit /send to the current world).
type Command struct {
	Kind Kind

	// Send fields.
	TargetWorld  string // from -w<world>; empty means current world
	AllWorlds    bool   // -W: send to every world
	NoTerminator bool   // -n: no terminator appended
	Text         string

	// Invoke fields (manual action invocation).
	ActionName string
	Args       []string
}

// ErrUnknownCommand is returned for any "/foo" that is neither a
// built-in nor a known action name (§6: "Unknown commands are an error").
type ErrUnknownCommand struct {
	Name string
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("command: unknown command %q", e.Name)
}

// KnownAction reports whether name is a defined action; Parse calls it
// to decide whether an unrecognized "/name" is a manual invocation or an
// error.
type KnownAction func(name string) bool

// Parse parses one line of user input. A line with no leading "/" is an
// implicit /send of the whole line to the current world.
func Parse(line string, knownAction KnownAction) (Command, error) {
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: KindSend, Text: line}, nil
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, &ErrUnknownCommand{Name: line}
	}
	name := fields[0]
	rest := strings.TrimSpace(strings.TrimPrefix(line, name))

	switch name {
	case "/send":
		return parseSend(rest)
	case "/disconnect", "/dc":
		return Command{Kind: KindDisconnect}, nil
	case "/reload":
		return Command{Kind: KindReload}, nil
	case "/quit":
		return Command{Kind: KindQuit}, nil
	case "/worlds":
		return Command{Kind: KindWorlds}, nil
	case "/connections", "/l":
		return Command{Kind: KindConnections}, nil
	case "/actions":
		return Command{Kind: KindActions}, nil
	default:
		actionName := strings.TrimPrefix(name, "/")
		if knownAction != nil && knownAction(actionName) {
			return Command{Kind: KindInvoke, ActionName: actionName, Args: fields[1:]}, nil
		}
		return Command{}, &ErrUnknownCommand{Name: name}
	}
}

// parseSend handles "/send [-W] [-w<world>] [-n] <text>" (§6).
func parseSend(rest string) (Command, error) {
	cmd := Command{Kind: KindSend}
	fields := strings.Fields(rest)

	i := 0
loop:
	for i < len(fields) {
		f := fields[i]
		switch {
		case f == "-W":
			cmd.AllWorlds = true
			i++
		case f == "-n":
			cmd.NoTerminator = true
			i++
		case strings.HasPrefix(f, "-w") && len(f) > 2:
			cmd.TargetWorld = f[2:]
			i++
		default:
			break loop
		}
	}
	cmd.Text = strings.Join(fields[i:], " ")
	return cmd, nil
}
