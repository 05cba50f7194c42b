// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package console

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/peterh/liner"
)

// UserPrompter defines the methods needed by the console to prompt the user
// for various types of inputs.
type UserPrompter interface {
	// PromptInput displays the given prompt to the user and requests some textual
	// data to be entered, returning the input of the user.
	PromptInput(prompt string) (string, error)

	// PromptPassword displays the given prompt to the user and requests some textual
	// data to be entered, but one which is not echoed out into the terminal.
	PromptPassword(prompt string) (string, error)

	// PromptConfirm displays the given prompt to the user and requests a boolean
	// choice to be made, returning that choice.
	PromptConfirm(prompt string) (bool, error)

	// SetHistory sets the the input scrollback history that the prompter will allow
	// the user to scroll back to.
	SetHistory(history []string)

	// AppendHistory appends an entry to the scrollback history. It should be called
	// if and only if the prompt to append was a valid command.
	AppendHistory(command string)

	// ClearHistory clears the entire history
	ClearHistory()

	// SetWordCompleter sets the completion function that the prompter will call to
	// fetch completion candidates when the user presses tab.
	SetWordCompleter(completer liner.WordCompleter)
}

// Stdin holds the stdin line reader (also using stdout for printing prompts).
// Only this reader may be used for input because it keeps an internal buffer.
var Stdin = newTerminalPrompter()

// terminalPrompter is a UserPrompter backed by a terminal line reader.
type terminalPrompter struct {
	*liner.State
	warned   bool
	supported bool
	normalMode liner.ModeApplier
	rawMode    liner.ModeApplier
	mu         sync.Mutex
}

// newTerminalPrompter creates a liner based user input prompter working off the
// standard input and output streams.
func newTerminalPrompter() *terminalPrompter {
	p := new(terminalPrompter)
	p.normalMode, _ = liner.TerminalMode()
	p.State = liner.NewLiner()
	p.rawMode, _ = liner.TerminalMode()
	if p.normalMode != nil {
		p.normalMode.ApplyMode()
	}
	p.SetCtrlCAborts(true)
	p.SetTabCompletionStyle(liner.TabPrints)
	p.SetMultiLineMode(true)
	p.supported = true
	return p
}

// PromptInput displays the given prompt to the user and requests some textual
// data to be entered, returning the input of the user.
func (p *terminalPrompter) PromptInput(prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rawMode != nil {
		p.rawMode.ApplyMode()
	}
	defer func() {
		if p.normalMode != nil {
			p.normalMode.ApplyMode()
		}
	}()
	return p.State.Prompt(prompt)
}

// PromptPassword displays the given prompt to the user and requests some textual
// data to be entered, but one which is not echoed out into the terminal.
func (p *terminalPrompter) PromptPassword(prompt string) (passwd string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rawMode != nil {
		p.rawMode.ApplyMode()
	}
	defer func() {
		if p.normalMode != nil {
			p.normalMode.ApplyMode()
		}
	}()
	return p.State.PasswordPrompt(prompt)
}

// PromptConfirm displays the given prompt to the user and requests a boolean
// choice to be made, returning that choice.
func (p *terminalPrompter) PromptConfirm(prompt string) (bool, error) {
	input, err := p.Prompt(prompt + " [y/N] ")
	if len(input) > 0 && strings.ToUpper(input[:1]) == "Y" {
		return true, nil
	}
	return false, err
}

// SetHistory sets the the input scrollback history that the prompter will allow
// the user to scroll back to.
func (p *terminalPrompter) SetHistory(history []string) {
	p.State.ReadHistory(strings.NewReader(strings.Join(history, "\n")))
}

// AppendHistory appends an entry to the scrollback history.
func (p *terminalPrompter) AppendHistory(command string) {
	p.State.AppendHistory(command)
}

// ClearHistory clears the entire history.
func (p *terminalPrompter) ClearHistory() {
	p.State.ClearHistory()
}

// SetWordCompleter sets the completion function that the prompter will call to
// fetch completion candidates when the user presses tab.
func (p *terminalPrompter) SetWordCompleter(completer liner.WordCompleter) {
	p.State.SetWordCompleter(completer)
}

// warnAboutNoTerminal prints a warning that stdin isn't attached to an
// interactive terminal, so input will not be echoed. It prints on every
// call.
func warnAboutNoTerminal() {
	fmt.Fprintln(os.Stderr, "console: stdin is not a terminal, input will not be echoed")
}
