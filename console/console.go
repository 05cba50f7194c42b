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

// Package console implements an interactive JavaScript REPL for
// operating a running imgcommitd daemon: starting, throttling,
// cancelling and polling commit jobs by hand.
package console

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	colorable "github.com/mattn/go-colorable"
	"github.com/peterh/liner"

	"imgcommit/internal/log"
)

var (
	onlyWhitespace = regexp.MustCompile(`^\s*$`)
	exit           = regexp.MustCompile(`^\s*exit\s*;*\s*$`)
)

// HistoryFile is the file within the data directory to store input scrollback.
const HistoryFile = "history"

// DefaultPrompt is the default prompt line prefix to use for user input querying.
const DefaultPrompt = "> "

// Config is the collection of configurations to fine tune the behavior of the
// console.
type Config struct {
	DataDir  string       // data directory to store the console history at
	Client   rpcCaller    // transport used to reach the daemon's commit_* methods
	Prompt   string       // input prompt prefix string (defaults to DefaultPrompt)
	Prompter UserPrompter // input prompter (defaults to Stdin)
	Printer  io.Writer    // output writer (defaults to os.Stdout)
	Preload  []string     // absolute paths to JavaScript files to preload
}

// Console is a JavaScript interpreted runtime environment attached to
// a running imgcommitd daemon via its IPC or in-process transport.
type Console struct {
	engine   *jsEngine
	prompt   string
	prompter UserPrompter
	histPath string
	history  []string
	printer  io.Writer
}

// New initializes a console and loads the requested preload scripts.
func New(config Config) (*Console, error) {
	if config.Prompter == nil {
		config.Prompter = Stdin
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Printer == nil {
		config.Printer = colorable.NewColorableStdout()
	}
	engine, err := newEngine(config.Printer, newBridge(config.Client))
	if err != nil {
		return nil, err
	}
	console := &Console{
		engine:   engine,
		prompt:   config.Prompt,
		prompter: config.Prompter,
		printer:  config.Printer,
		histPath: filepath.Join(config.DataDir, HistoryFile),
	}
	if err := os.MkdirAll(config.DataDir, 0700); err != nil {
		return nil, err
	}
	if err := console.init(config.Preload); err != nil {
		return nil, err
	}
	return console, nil
}

func (c *Console) init(preload []string) error {
	if content, err := ioutil.ReadFile(c.histPath); err == nil {
		c.history = strings.Split(string(content), "\n")
		if len(c.history) > 0 && c.history[len(c.history)-1] == "" {
			c.history = c.history[:len(c.history)-1]
		}
		if c.prompter != nil {
			c.prompter.SetHistory(c.history)
		}
	}
	for _, path := range preload {
		if err := c.Execute(path); err != nil {
			return fmt.Errorf("%s: %v", path, err)
		}
	}
	if c.prompter != nil {
		c.prompter.SetWordCompleter(c.AutoCompleteInput)
	}
	return nil
}

// AutoCompleteInput is a pre-assembled word completer to be used by
// the user input prompter to provide hints about available methods.
func (c *Console) AutoCompleteInput(line string, pos int) (string, []string, string) {
	if len(line) == 0 || pos == 0 {
		return "", nil, ""
	}
	start := pos - 1
	for ; start > 0; start-- {
		if line[start] == '.' || (line[start] >= 'a' && line[start] <= 'z') || (line[start] >= 'A' && line[start] <= 'Z') {
			continue
		}
		start++
		break
	}
	return line[:start], c.engine.CompleteKeywords(line[start:pos]), line[pos:]
}

// Welcome prints a short banner naming the engine build and the
// namespaces available to the operator.
func (c *Console) Welcome() {
	fmt.Fprintf(c.printer, "Welcome to the imgcommit console (%s engine)\n", engineName)
	fmt.Fprintln(c.printer, "modules: commit")
	fmt.Fprintln(c.printer)
}

// Evaluate executes a statement and prints its result.
func (c *Console) Evaluate(statement string) error {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(c.printer, "[native] error: %v\n", r)
		}
	}()
	result, err := c.engine.Run(statement)
	if err != nil {
		fmt.Fprintln(c.printer, "error:", err)
		return err
	}
	if result != "" {
		fmt.Fprintln(c.printer, result)
	}
	return nil
}

// Interactive starts an interactive user session, prompting the
// configured prompter for each line.
func (c *Console) Interactive() {
	var (
		prompt    = c.prompt
		indents   = 0
		input     = ""
		scheduler = make(chan string)
	)
	go func() {
		for {
			line, err := c.prompter.PromptInput(<-scheduler)
			if err != nil {
				if err == liner.ErrPromptAborted {
					prompt, indents, input = c.prompt, 0, ""
					scheduler <- ""
					continue
				}
				close(scheduler)
				return
			}
			scheduler <- line
		}
	}()

	abort := make(chan os.Signal, 1)
	signal.Notify(abort, syscall.SIGINT, syscall.SIGTERM)

	for {
		scheduler <- prompt
		select {
		case <-abort:
			fmt.Fprintln(c.printer, "caught interrupt, exiting")
			return
		case line, ok := <-scheduler:
			if !ok || (indents <= 0 && exit.MatchString(line)) {
				return
			}
			if onlyWhitespace.MatchString(line) {
				continue
			}
			input += line + "\n"
			indents = countIndents(input)
			if indents <= 0 {
				prompt = c.prompt
			} else {
				prompt = strings.Repeat(".", indents*3) + " "
			}
			if indents <= 0 {
				if command := strings.TrimSpace(input); len(c.history) == 0 || command != c.history[len(c.history)-1] {
					c.history = append(c.history, command)
					if c.prompter != nil {
						c.prompter.AppendHistory(command)
					}
				}
				c.Evaluate(input)
				input = ""
			}
		}
	}
}

// countIndents returns the number of brace/paren nesting levels left
// open by input; negative on malformed input such as `var a = }`.
func countIndents(input string) int {
	var (
		indents     = 0
		inString    = false
		strOpenChar = ' '
		charEscaped = false
	)
	for _, ch := range input {
		switch ch {
		case '\\':
			if !charEscaped && inString {
				charEscaped = true
			}
		case '\'', '"':
			if inString && !charEscaped && strOpenChar == ch {
				inString = false
			} else if !inString && !charEscaped {
				inString = true
				strOpenChar = ch
			}
			charEscaped = false
		case '{', '(':
			if !inString {
				indents++
			}
			charEscaped = false
		case '}', ')':
			if !inString {
				indents--
			}
			charEscaped = false
		default:
			charEscaped = false
		}
	}
	return indents
}

// Execute runs the JavaScript file at path.
func (c *Console) Execute(path string) error {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = c.engine.Run(string(raw))
	return err
}

// Stop persists scrollback history and tears down the JS engine.
func (c *Console) Stop(graceful bool) error {
	if err := ioutil.WriteFile(c.histPath, []byte(strings.Join(c.history, "\n")), 0600); err != nil {
		return err
	}
	if err := os.Chmod(c.histPath, 0600); err != nil {
		return err
	}
	c.engine.Stop()
	log.Debug("console stopped", "graceful", graceful)
	return nil
}
