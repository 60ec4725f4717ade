// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package cli is an interactive SQL client of the gateway.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	gateway "github.com/featurebasedb/sqlgateway"
	"github.com/featurebasedb/sqlgateway/client"
	"github.com/featurebasedb/sqlgateway/environment"
	"github.com/featurebasedb/sqlgateway/errors"
	"github.com/featurebasedb/sqlgateway/logger"
	uuid "github.com/satori/go.uuid"
)

const (
	defaultAddress      string = "localhost:8083"
	defaultPageSize     int    = 100
	defaultPollInterval        = 100 * time.Millisecond

	promptBegin     string = "gateway> "
	promptMid       string = "      -> "
	terminationChar string = ";"
	exitCommand     string = "exit"
	quitCommand     string = "quit"
)

var (
	Stdin  io.ReadCloser = os.Stdin
	Stdout io.Writer     = os.Stdout
	Stderr io.Writer     = os.Stderr
)

var splash string = fmt.Sprintf(`%s
Type "exit" to quit.
`, gateway.VersionInfo())

type CLICommand struct {
	Address     string `json:"address"`
	HistoryPath string `json:"history-path"`
	// Environment is a YAML environment file the session is opened with.
	Environment string `json:"environment"`
	// SessionID names the session. A random id is used when empty.
	SessionID string `json:"session"`
	Retries   int    `json:"retries"`

	PageSize     int           `json:"page-size"`
	PollInterval time.Duration `json:"poll-interval"`

	// commands holds the list of sql commands to be executed.
	commands []string

	// partialCommand holds all input prior to receiving a termination
	// character.
	partialCommand string

	// Executor is the gateway the statements run on. It defaults to an
	// HTTP client of Address.
	Executor gateway.Executor `json:"-"`

	logger logger.Logger

	Stdin  io.ReadCloser `json:"-"`
	Stdout io.Writer     `json:"-"`
	Stderr io.Writer     `json:"-"`
}

func NewCLICommand(logdest logger.Logger) *CLICommand {
	if logdest == nil {
		logdest = logger.NopLogger
	}
	return &CLICommand{
		Address:      defaultAddress,
		PageSize:     defaultPageSize,
		PollInterval: defaultPollInterval,

		logger: logdest,

		Stdin:  Stdin,
		Stdout: Stdout,
		Stderr: Stderr,
	}
}

func (cmd *CLICommand) setupHistory() {
	// If HistoryPath has already been configured (i.e. with a command flag),
	// don't bother setting up the default in the home directory.
	if cmd.HistoryPath != "" {
		return
	}

	historyPath := ""
	if home, err := os.UserHomeDir(); err != nil {
		cmd.Printf("Error getting home directory, command history persistence will be disabled: %v\n", err)
	} else {
		historyDir := filepath.Join(home, ".sqlgateway")
		err := os.MkdirAll(historyDir, 0o750)
		if err != nil {
			cmd.Printf("Creating directory for history: %v\n", err)
		} else {
			historyPath = filepath.Join(historyDir, "cli_history")
		}
	}
	cmd.HistoryPath = historyPath
}

func (cmd *CLICommand) setupClient() error {
	// If the Executor has already been set (in tests for example), don't
	// bother creating a client.
	if cmd.Executor != nil {
		return nil
	}
	if strings.TrimSpace(cmd.Address) == "" {
		return errors.Errorf("no address provided")
	}
	c := client.New(client.Config{
		Address: cmd.Address,
		Retries: cmd.Retries,
		Logger:  cmd.logger,
	})
	if !c.Health(context.Background()) {
		return errors.Errorf("no gateway answering at %s", cmd.Address)
	}
	cmd.Executor = c
	return nil
}

// openSession opens the session statements run in.
func (cmd *CLICommand) openSession(ctx context.Context) error {
	var env *environment.Environment
	if cmd.Environment != "" {
		e, err := environment.ParseFile(cmd.Environment)
		if err != nil {
			return errors.Wrap(err, "reading environment")
		}
		env = e
	}
	if cmd.SessionID == "" {
		u, err := uuid.NewV4()
		if err != nil {
			return errors.Wrap(err, "generating session id")
		}
		cmd.SessionID = u.String()
	}
	id, err := cmd.Executor.OpenSession(ctx, cmd.SessionID, env)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	cmd.SessionID = id
	cmd.Printf("Session: %s\n", id)
	return nil
}

func (cmd *CLICommand) Run(ctx context.Context) error {
	// Print the splash message.
	cmd.Printf(splash)
	cmd.setupHistory()
	if err := cmd.setupClient(); err != nil {
		return errors.Wrap(err, "setting up client")
	}
	if err := cmd.openSession(ctx); err != nil {
		return err
	}
	defer func() {
		if err := cmd.Executor.CloseSession(context.Background(), cmd.SessionID); err != nil {
			cmd.Printf("Closing session: %v\n", err)
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:                 promptBegin,
		HistoryFile:            cmd.HistoryPath,
		HistoryLimit:           100000,
		DisableAutoSaveHistory: true,
		AutoComplete:           &completer{ctx: ctx, cmd: cmd},

		Stdin:  cmd.Stdin,
		Stdout: cmd.Stdout,
		Stderr: cmd.Stderr,
	})
	if err != nil {
		return errors.Wrap(err, "getting readline")
	}
	defer rl.Close()

	for {
		if cmd.partialCommand != "" {
			rl.SetPrompt(promptMid)
		} else {
			rl.SetPrompt(promptBegin)
			// Add some white space before each new prompt.
			cmd.Printf("\n")
		}

		// Read user provided input.
		line, err := rl.Readline()
		if err == io.EOF {
			return nil
		} else if err == readline.ErrInterrupt {
			cmd.partialCommand = ""
			continue
		} else if err != nil {
			return errors.Wrap(err, "reading line")
		}

		quit, err := cmd.processLine(ctx, line, func(stmts []string) {
			if err := rl.SaveHistory(strings.Join(stmts, "; ") + ";"); err != nil {
				cmd.Printf("Couldn't save history: %v\n", err)
			}
		})
		if err != nil {
			return errors.Wrap(err, "executing commands")
		} else if quit {
			return nil
		}
	}
}

// processLine adds a line of input to the command being typed and runs
// every statement the line terminates. It returns true when the user asked
// to quit.
func (cmd *CLICommand) processLine(ctx context.Context, line string, saveHistory func([]string)) (bool, error) {
	if cmd.partialCommand == "" {
		switch strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), terminationChar)) {
		case exitCommand, quitCommand:
			return true, nil
		}
	}

	// Keep the line feeds the user typed; string literals may span lines.
	line += "\n"

	parts := strings.Split(line, terminationChar)
	for i, part := range parts {
		if i == len(parts)-1 {
			// Without a termination character the part stays pending.
			if strings.TrimSpace(part) != "" || cmd.partialCommand != "" {
				cmd.partialCommand += part
			}
			break
		}
		stmt := strings.TrimSpace(cmd.partialCommand + part)
		cmd.partialCommand = ""
		if stmt != "" {
			cmd.commands = append(cmd.commands, stmt)
		}
	}
	if strings.TrimSpace(cmd.partialCommand) == "" {
		cmd.partialCommand = ""
	}

	if len(cmd.commands) == 0 {
		return false, nil
	}
	if saveHistory != nil {
		saveHistory(cmd.commands)
	}
	return false, cmd.executeCommands(ctx)
}

func (cmd *CLICommand) executeCommands(ctx context.Context) error {
	// Clear out the buffered commands on any exit from this method.
	defer func() {
		cmd.commands = nil
	}()

	for _, sql := range cmd.commands {
		start := time.Now()
		res, err := cmd.Executor.ExecuteSQL(ctx, cmd.SessionID, sql)
		if err != nil {
			cmd.printError(err)
			continue
		}

		switch {
		case res.Table != nil:
			err = writeTable(res.Table, cmd.Stdout)
		case res.Result != nil:
			err = cmd.fetchResult(ctx, res.Result)
		case res.Target != nil:
			cmd.Printf("[INFO] Submitted insert as job %s.\n", res.Target.JobID)
		}
		if err != nil {
			if errors.Is(err, client.ErrTransport) {
				return err
			}
			cmd.printError(err)
			continue
		}
		cmd.logger.Debugf("executed %q in %s", sql, time.Since(start))
	}
	return nil
}

// fetchResult polls a query's result until it ends, or until the user
// interrupts it, in which case the query is cancelled.
func (cmd *CLICommand) fetchResult(ctx context.Context, desc *gateway.ResultDescriptor) error {
	qctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var err error
	if desc.Materialized {
		err = cmd.fetchTable(qctx, desc)
	} else {
		err = cmd.fetchChanges(qctx, desc)
	}
	if qctx.Err() != nil && ctx.Err() == nil {
		cmd.Printf("[INFO] Query aborted.\n")
		return cmd.Executor.CancelQuery(ctx, cmd.SessionID, desc.ID)
	}
	return err
}

// fetchTable shows the last snapshot of a materialized result once the
// result is complete.
func (cmd *CLICommand) fetchTable(ctx context.Context, desc *gateway.ResultDescriptor) error {
	rows := newRowBuffer(desc.Schema)
	err := cmd.poll(ctx, func() (bool, error) {
		snap, err := cmd.Executor.SnapshotResult(ctx, cmd.SessionID, desc.ID, cmd.PageSize)
		if err != nil {
			return false, err
		}
		switch snap.Status {
		case gateway.StatusEOS:
			return true, nil
		case gateway.StatusPayload:
			rows.reset()
			for page := 1; page <= snap.Pages; page++ {
				r, err := cmd.Executor.RetrieveResultPage(ctx, cmd.SessionID, desc.ID, page)
				if err != nil {
					return false, err
				}
				rows.append(r...)
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	return rows.render(cmd.Stdout)
}

// fetchChanges prints the changes of a changelog result as they arrive.
func (cmd *CLICommand) fetchChanges(ctx context.Context, desc *gateway.ResultDescriptor) error {
	w := newChangeWriter(desc.Schema, cmd.Stdout)
	defer w.close()

	return cmd.poll(ctx, func() (bool, error) {
		changes, err := cmd.Executor.RetrieveResultChanges(ctx, cmd.SessionID, desc.ID)
		if err != nil {
			return false, err
		}
		if changes.Status == gateway.StatusEOS {
			return true, nil
		}
		w.write(changes.Rows)
		return false, nil
	})
}

// poll calls read until it reports done or ctx is cancelled.
func (cmd *CLICommand) poll(ctx context.Context, read func() (bool, error)) error {
	interval := cmd.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	for {
		done, err := read()
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (cmd *CLICommand) printError(err error) {
	fmt.Fprintf(cmd.Stderr, "[ERROR] %s\n", err.Error())
}

// Printf is a helper method which sends the given payload to stdout.
func (cmd *CLICommand) Printf(format string, a ...any) {
	out := fmt.Sprintf(format, a...)
	cmd.Stdout.Write([]byte(out))
}
