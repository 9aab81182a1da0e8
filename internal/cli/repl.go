// Copyright (c) 2025 Quill Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/arlenmoor/quill/internal/config"
	"github.com/arlenmoor/quill/internal/engine"
	"github.com/arlenmoor/quill/internal/export"
	"github.com/arlenmoor/quill/internal/model"
	"github.com/arlenmoor/quill/internal/util"
)

// =============================================================================
// SESSION STATE
// =============================================================================

// Session holds the state of one interactive run.
type Session struct {
	// Config is the live configuration holder. Reads take a snapshot so a
	// background reload never tears a turn's settings.
	Config *config.Live
	Engine *engine.Engine
	Input  *Input

	// Current session; empty until the first turn creates one.
	Current string

	// FastMode is the live toggle, seeded from config.
	FastMode bool

	StartTime time.Time
	Turns     int

	mu         sync.Mutex
	cancelTurn context.CancelFunc
	printed    int
	liveStream bool
}

// NewSession creates the interactive session state.
func NewSession(live *config.Live, eng *engine.Engine) *Session {
	return &Session{
		Config:    live,
		Engine:    eng,
		Input:     NewInput(),
		FastMode:  live.Get().Chat.FastMode,
		StartTime: time.Now(),
	}
}

// =============================================================================
// MAIN LOOP
// =============================================================================

// Run starts the REPL and blocks until the user exits.
func Run(live *config.Live, eng *engine.Engine) error {
	session := NewSession(live, eng)
	defer session.Input.Close()

	// Streamed partials print incrementally unless markdown rendering will
	// reformat the final answer anyway.
	session.liveStream = !(live.Get().UI.Markdown && IsStdoutTTY())
	eng.OnUpdate = session.onUpdate

	printWelcome(session)

	// First Ctrl+C cancels the running turn rather than killing the REPL.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			session.mu.Lock()
			cancel := session.cancelTurn
			session.cancelTurn = nil
			session.mu.Unlock()
			if cancel != nil {
				cancel()
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := session.Input.Read(promptStyle.Render("quill> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF (Ctrl+D) exits gracefully.
			if err != liner.ErrPromptAborted && err != io.EOF {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			fmt.Println()
			printExitSummary(session)
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			cont, err := handleCommand(input, session)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !cont {
				printExitSummary(session)
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			printExitSummary(session)
			return nil
		}

		if err := session.submit(input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// =============================================================================
// TURN SUBMISSION
// =============================================================================

// submit runs one turn and displays the settled answer.
func (s *Session) submit(input string) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelTurn = cancel
	s.printed = 0
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelTurn = nil
		s.mu.Unlock()
		cancel()
	}()

	fmt.Println()

	// One snapshot per turn; a reload mid-turn applies from the next turn.
	cfg := s.Config.Get()

	res, err := s.Engine.Submit(ctx, s.Current, input, engine.Options{
		FastMode:         s.FastMode,
		UseKnowledge:     cfg.Knowledge.Enabled,
		KnowledgeSources: cfg.Knowledge.Sources,
		MaxResults:       cfg.Knowledge.MaxResults,
		HistoryLimit:     cfg.Chat.HistoryLimit,
	})
	if err != nil {
		if errors.Is(err, engine.ErrTurnInFlight) {
			return fmt.Errorf("previous turn still running")
		}
		return err
	}

	s.Current = res.SessionID
	s.Turns++

	if s.liveStream {
		// Partial content already printed; just terminate the line.
		fmt.Println()
	} else {
		displayAnswer(res.Content, cfg.UI.Markdown)
	}
	fmt.Println()

	if res.Err != nil {
		fmt.Fprintf(os.Stderr, "%s turn ended with an error\n", warningStyle.Render("[Warning]"))
	}

	if cfg.UI.ShowSources {
		printSources(s.Engine.Sources(res.SessionID), res.Fast)
	}
	if cfg.UI.ShowStats {
		printTurnStats(res)
	}
	return nil
}

// onUpdate is the engine's streaming hook. It receives the full accumulated
// content on every throttled write and prints only the unseen suffix.
func (s *Session) onUpdate(_, _, content string) {
	if !s.liveStream {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(content) <= s.printed {
		return
	}
	fmt.Print(content[s.printed:])
	s.printed = len(content)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand processes one slash command. A false return exits the REPL.
func handleCommand(cmd string, s *Session) (bool, error) {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		printHelp()
		return true, nil

	case "/new", "/n":
		s.Current = s.Engine.NewSession()
		fmt.Println(commandStyle.Render("[New conversation started]"))
		return true, nil

	case "/list", "/l":
		printSessionList(s)
		return true, nil

	case "/open", "/o":
		return true, handleOpen(s, args)

	case "/delete", "/d":
		return true, handleDelete(s, args)

	case "/fast", "/f":
		s.FastMode = !s.FastMode
		if s.FastMode {
			fmt.Println(commandStyle.Render("[Fast mode on]"))
		} else {
			fmt.Println(commandStyle.Render("[Fast mode off]"))
		}
		return true, nil

	case "/sources", "/s":
		printSources(s.Engine.Sources(s.Current), false)
		return true, nil

	case "/export", "/e":
		return true, handleExport(s, args)

	case "/quit", "/q", "/exit":
		return false, nil

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
}

// resolveSession maps a /open or /delete argument (list number or id prefix)
// onto a session id.
func resolveSession(s *Session, arg string) (string, error) {
	sessions := s.Engine.Store().ListSessions()

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return "", fmt.Errorf("no session %d (have %d)", n, len(sessions))
		}
		return sessions[n-1].ID, nil
	}

	for _, sess := range sessions {
		if strings.HasPrefix(sess.ID, arg) {
			return sess.ID, nil
		}
	}
	return "", fmt.Errorf("no session matching '%s'", arg)
}

func handleOpen(s *Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /open <number>")
	}
	id, err := resolveSession(s, args[0])
	if err != nil {
		return err
	}

	s.Current = id
	s.Engine.Store().SelectSession(id)
	sess := s.Engine.Store().GetSession(id)
	fmt.Printf("%s %s\n", commandStyle.Render("[Opened]"), sess.DisplayTitle())
	printTranscript(sess)
	return nil
}

func handleDelete(s *Session, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /delete <number>")
	}
	id, err := resolveSession(s, args[0])
	if err != nil {
		return err
	}

	if err := s.Engine.DeleteSession(id); err != nil {
		return err
	}
	if s.Current == id {
		s.Current = ""
	}
	fmt.Println(commandStyle.Render("[Conversation deleted]"))
	return nil
}

// handleExport writes the current conversation to a file in the working
// directory. Format defaults to markdown; "/export json" selects JSON.
func handleExport(s *Session, args []string) error {
	if s.Current == "" {
		return fmt.Errorf("no conversation to export")
	}
	sess := s.Engine.Store().GetSession(s.Current)
	if sess == nil || sess.MessageCount() == 0 {
		return fmt.Errorf("no conversation to export")
	}

	opts := export.DefaultOptions()
	var exporter export.Exporter = export.NewMarkdownExporter(opts)
	if len(args) > 0 && strings.EqualFold(args[0], "json") {
		exporter = export.NewJSONExporter(opts)
	}

	path, err := export.ToFile(sess, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", commandStyle.Render("[Exported]"), path)
	return nil
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

func printWelcome(s *Session) {
	cfg := s.Config.Get()

	fmt.Println()
	fmt.Println(welcomeStyle.Render("quill workbench assistant"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))

	if cfg.Server.URL == "" {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Server:"),
			warningStyle.Render("not configured (set server.url in ~/.quill/config.toml)"))
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("Server:"),
			commandStyle.Render(cfg.Server.URL))
	}

	if s.FastMode {
		fmt.Printf("%s %s\n", infoStyle.Render("Mode:"), commandStyle.Render("fast (quick answers when possible)"))
	} else {
		fmt.Printf("%s %s\n", infoStyle.Render("Mode:"), commandStyle.Render("full (always streaming)"))
	}

	if cfg.Knowledge.Enabled {
		fmt.Printf("%s %s\n", infoStyle.Render("Knowledge:"), commandStyle.Render("enabled"))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

func printHelp() {
	fmt.Println()
	fmt.Println(headerStyle.Render("Available Commands"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	fmt.Println()

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help, /h", "Show this help"},
		{"/new, /n", "Start a new conversation"},
		{"/list, /l", "List conversations"},
		{"/open N", "Open conversation N"},
		{"/delete N", "Delete conversation N"},
		{"/fast, /f", "Toggle fast mode"},
		{"/sources, /s", "Show sources for the last answer"},
		{"/export [json]", "Export the conversation to a file"},
		{"/quit, /q", "Exit"},
	}

	for _, c := range commands {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-15s", c.cmd)),
			infoStyle.Render(c.desc))
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Tip: Ctrl+C cancels the running turn, Ctrl+D exits"))
	fmt.Println()
}

func printSessionList(s *Session) {
	sessions := s.Engine.Store().ListSessions()
	if len(sessions) == 0 {
		fmt.Println(infoStyle.Render("[No conversations yet]"))
		return
	}

	fmt.Println()
	fmt.Println(headerStyle.Render("Conversations"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 20)))
	for i, sess := range sessions {
		marker := "  "
		if sess.ID == s.Current {
			marker = commandStyle.Render("* ")
		}
		fmt.Printf("%s%d. %s %s\n",
			marker,
			i+1,
			util.PadWidth(util.TruncateWidth(sess.DisplayTitle(), 40), 40),
			mutedStyle.Render(fmt.Sprintf("(%d messages)", sess.MessageCount())))
	}
	fmt.Println()
}

func printTranscript(sess *model.Session) {
	for _, msg := range sess.Messages {
		var role string
		switch msg.Role {
		case model.RoleUser:
			role = promptStyle.Render("You")
		case model.RoleAssistant:
			role = welcomeStyle.Render("Assistant")
		default:
			role = warningStyle.Render(msg.Role.DisplayName())
		}
		content := strings.ReplaceAll(msg.Content, "\n", " ")
		fmt.Printf("  %s: %s\n", role, util.TruncateRunes(content, 100))
	}
	fmt.Println()
}

func printSources(sources []model.SourceRef, fast bool) {
	if fast || len(sources) == 0 {
		return
	}
	fmt.Println(infoStyle.Render("Sources:"))
	for _, src := range sources {
		line := fmt.Sprintf("  [%s] %s", src.Kind, src.Title)
		if src.URL != "" {
			line += " " + mutedStyle.Render(src.URL)
		}
		fmt.Println(infoStyle.Render(line))
	}
	fmt.Println()
}

func printTurnStats(res *engine.TurnResult) {
	path := "full"
	if res.Fast {
		path = "quick"
	}
	line := fmt.Sprintf("[Stats] %s | %s", path, res.Elapsed.Round(time.Millisecond))
	if res.Skipped > 0 {
		line += fmt.Sprintf(" | %d skipped records", res.Skipped)
	}
	fmt.Fprintln(os.Stderr, mutedStyle.Render(line))
}

func printExitSummary(s *Session) {
	if s.Turns == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := time.Since(s.StartTime).Round(time.Second)

	fmt.Println()
	fmt.Println(headerStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))
	fmt.Printf("  %s %d\n", infoStyle.Render("Turns:"), s.Turns)
	fmt.Printf("  %s %d\n", infoStyle.Render("Conversations:"), s.Engine.Store().Len())
	fmt.Printf("  %s %s\n", infoStyle.Render("Duration:"), elapsed.String())
	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
