// Copyright 2018-2022 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/fatih/color"
	"github.com/u-root/sploit/client"
)

var (
	bye  = color.New(color.FgGreen)
	warn = color.New(color.FgRed)
)

var commands = []prompt.Suggest{
	{Text: "login", Description: "login $USER"},
	{Text: "pass", Description: "pass $PASSWORD"},
	{Text: "logout", Description: "end the session"},
	{Text: "whoami", Description: "show the session user"},
	{Text: "w", Description: "list logged in users"},
	{Text: "get", Description: "get $FILENAME"},
	{Text: "put", Description: "put $FILENAME $SIZE"},
	{Text: "ping", Description: "ping $HOST"},
	{Text: "cd", Description: "cd $DIR"},
	{Text: "exit", Description: "leave sploit"},
}

// do runs one line and reports whether the session is over.
// Rejected commands are printed and do not end the session; for
// them, and only them, the prompt is out's to print.
func do(c *client.Client, line string, out io.Writer, ps1 string) (bool, error) {
	r, err := c.Do(line)
	fmt.Fprint(out, r)
	var pe *client.ProtocolError
	switch {
	case err == nil:
	case errors.Is(err, client.ErrExit):
		bye.Fprintln(out, "Bye!")
		return true, nil
	case errors.Is(err, client.ErrRejected):
		warn.Fprintf(out, "Client: %v\n", err)
		fmt.Fprint(out, ps1)
	case errors.As(err, &pe):
		warn.Fprintf(out, "Client: %v\n", pe)
	case errors.Is(err, client.ErrNotStarted):
		warn.Fprintf(out, "Client: %v\n", err)
	default:
		return true, err
	}
	return false, nil
}

// lines reads commands from in until EOF or exit. Replies, prompt
// included, go to out.
func lines(c *client.Client, in io.Reader, out io.Writer) error {
	fmt.Fprint(out, client.Prompt)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		done, err := do(c, sc.Text(), out, client.Prompt)
		if err != nil || done {
			return err
		}
	}
	return sc.Err()
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

// repl runs an interactive session on the terminal.
func repl(c *client.Client, out io.Writer) error {
	var (
		exited bool
		rerr   error
	)
	executor := func(line string) {
		if exited {
			return
		}
		done, err := do(c, line, &trimmer{w: out}, "")
		exited, rerr = done, err
		if err != nil {
			warn.Fprintf(out, "%v\n", err)
		}
	}
	p := prompt.New(
		executor,
		completer,
		prompt.OptionTitle("sploit"),
		prompt.OptionPrefix(client.Prompt),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
		prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
		prompt.OptionSuggestionBGColor(prompt.DarkGray),
		prompt.OptionCompletionWordSeparator(" "),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return exited }),
	)
	p.Run()
	return rerr
}

// trimmer drops the server's prompt; go-prompt prints its own.
type trimmer struct {
	w io.Writer
}

func (t *trimmer) Write(b []byte) (int, error) {
	s := strings.TrimSuffix(string(b), client.Prompt)
	if _, err := io.WriteString(t.w, s); err != nil {
		return 0, err
	}
	return len(b), nil
}
