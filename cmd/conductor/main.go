// ABOUTME: Entry point for the conductor agent supervisor
// ABOUTME: Runs the supervisor with an interactive console standing in for the desktop shell

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/conductor-max/conductor/internal/agent"
	"github.com/conductor-max/conductor/internal/bus"
	"github.com/conductor-max/conductor/internal/config"
	"github.com/conductor-max/conductor/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _            _
  ___ ___  _ __   __| |_   _  ___| |_ ___  _ __
 / __/ _ \| '_ \ / _' | | | |/ __| __/ _ \| '__|
| (_| (_) | | | | (_| | |_| | (__| || (_) | |
 \___\___/|_| |_|\__,_|\__,_|\___|\__\___/|_|
`

// getConfigPath returns the path to the conductor config file.
// Priority: CONDUCTOR_CONFIG env var > XDG_CONFIG_HOME/conductor/conductor.yaml > ~/.config/conductor/conductor.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CONDUCTOR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "conductor.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "conductor", "conductor.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: conductor <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the supervisor with an interactive console")
		fmt.Println("  init      Create a new config file with defaults")
		fmt.Println("  sessions  List session exports persisted to the database")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "sessions":
		err = runSessions(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Claude:    %s\n", cfg.Agents.ClaudeCommand)
	green.Print("    ▶ ")
	fmt.Printf("Gemini:    %s\n", cfg.Agents.GeminiCommand)
	if cfg.Database.Path != "" {
		green.Print("    ▶ ")
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
	}
	fmt.Println()

	mgr := agent.NewManager(agent.ManagerParams{
		Commands: map[agent.Type]string{
			agent.TypeClaude: cfg.Agents.ClaudeCommand,
			agent.TypeGemini: cfg.Agents.GeminiCommand,
		},
		DefaultWorkspace: cfg.Agents.DefaultWorkspace,
		Rows:             cfg.Terminal.Rows,
		Cols:             cfg.Terminal.Cols,
		ChunkBuffer:      cfg.Supervisor.OutputBufferChunks,
		LineBuffer:       cfg.Supervisor.OutputBufferLines,
		KillGrace:        cfg.Supervisor.KillGracePeriod,
		Logger:           logger,
	})

	logger.Info("starting conductor",
		"config", configPath,
		"session_id", mgr.SessionID(),
	)

	// Print bus events so the console shows agent lifecycle as it happens.
	go printEvents(ctx, mgr)

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		runConsole(ctx, mgr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-consoleDone:
	}

	// Every agent gets the two-phase kill treatment before we exit, signal
	// or not.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap := mgr.Snapshot()
	mgr.Shutdown(shutdownCtx)

	if cfg.Database.Path != "" {
		st, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		defer st.Close()
		if err := st.SaveSnapshot(shutdownCtx, snap); err != nil {
			return fmt.Errorf("saving session export: %w", err)
		}
	}

	return nil
}

// printEvents subscribes to the notification bus and renders status, error,
// and system events. Output chunks are deliberately not echoed here; the
// `output` console command serves buffered lines on demand.
func printEvents(ctx context.Context, mgr *agent.Manager) {
	events, _ := mgr.Bus().Subscribe(ctx)

	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	for msg := range events {
		switch msg.Type {
		case bus.TypeStatus:
			yellow.Printf("[%s] status: %s\n", msg.AgentID, msg.Payload)
		case bus.TypeError:
			red.Printf("[%s] error: %s\n", msg.AgentID, msg.Payload)
		case bus.TypeSystemEvent:
			gray.Printf("[%s] %s\n", msg.AgentID, msg.Payload)
		}
	}
}

// drainOutput keeps an agent's output channel flowing so the read loop's
// backpressure never stalls an unwatched agent. The line buffer and bus have
// already captured each chunk by the time it lands here.
func drainOutput(ctx context.Context, mgr *agent.Manager, agentID string) {
	for {
		if _, err := mgr.NextOutput(ctx, agentID); err != nil {
			return
		}
	}
}

func runConsole(ctx context.Context, mgr *agent.Manager) {
	scanner := bufio.NewScanner(os.Stdin)
	prompt := color.New(color.FgCyan)

	prompt.Print("conductor> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !dispatch(ctx, mgr, line) {
			return
		}
		prompt.Print("conductor> ")
	}
}

// dispatch executes one console command. Returns false when the console
// should exit.
func dispatch(ctx context.Context, mgr *agent.Manager, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	fail := func(err error) {
		color.New(color.FgRed).Printf("error: %v\n", err)
	}

	switch cmd {
	case "help":
		fmt.Println("Commands:")
		fmt.Println("  spawn <claude|gemini> [id] [workspace]")
		fmt.Println("  send <id> <command...>")
		fmt.Println("  interrupt <id>")
		fmt.Println("  resize <id> <rows> <cols>")
		fmt.Println("  kill <id>")
		fmt.Println("  list")
		fmt.Println("  status <id>")
		fmt.Println("  output <id> [max_lines]")
		fmt.Println("  broadcast <command...>")
		fmt.Println("  export")
		fmt.Println("  quit")

	case "spawn":
		if len(args) < 1 {
			fail(fmt.Errorf("usage: spawn <claude|gemini> [id] [workspace]"))
			break
		}
		agentType, err := agent.ParseType(args[0])
		if err != nil {
			fail(err)
			break
		}
		cfg := agent.Config{Type: agentType}
		if len(args) > 1 {
			cfg.ID = args[1]
		}
		if len(args) > 2 {
			cfg.Workspace = args[2]
		}
		id, err := mgr.Spawn(cfg)
		if err != nil {
			fail(err)
			break
		}
		go drainOutput(ctx, mgr, id)
		fmt.Printf("spawned %s\n", id)

	case "send":
		if len(args) < 2 {
			fail(fmt.Errorf("usage: send <id> <command...>"))
			break
		}
		if err := mgr.SendCommand(args[0], strings.Join(args[1:], " ")); err != nil {
			fail(err)
		}

	case "interrupt":
		if len(args) != 1 {
			fail(fmt.Errorf("usage: interrupt <id>"))
			break
		}
		if err := mgr.SendRaw(args[0], []byte{0x03}); err != nil {
			fail(err)
		}

	case "resize":
		if len(args) != 3 {
			fail(fmt.Errorf("usage: resize <id> <rows> <cols>"))
			break
		}
		rows, err1 := strconv.ParseUint(args[1], 10, 16)
		cols, err2 := strconv.ParseUint(args[2], 10, 16)
		if err1 != nil || err2 != nil {
			fail(fmt.Errorf("rows and cols must be numbers"))
			break
		}
		if err := mgr.Resize(args[0], uint16(rows), uint16(cols)); err != nil {
			fail(err)
		}

	case "kill":
		if len(args) != 1 {
			fail(fmt.Errorf("usage: kill <id>"))
			break
		}
		if err := mgr.Kill(args[0]); err != nil {
			fail(err)
		}

	case "list":
		statuses := mgr.List()
		if len(statuses) == 0 {
			fmt.Println("no agents")
			break
		}
		for _, st := range statuses {
			state := "running"
			if !st.Running {
				state = "stopped"
			}
			fmt.Printf("%-36s  %-7s  %-8s  commands=%d  last=%s\n",
				st.ID, st.AgentType, state, st.CommandsSent,
				st.LastActivity.Format(time.TimeOnly))
		}

	case "status":
		if len(args) != 1 {
			fail(fmt.Errorf("usage: status <id>"))
			break
		}
		st, err := mgr.Status(args[0])
		if err != nil {
			fail(err)
			break
		}
		fmt.Printf("id:         %s\n", st.ID)
		fmt.Printf("type:       %s\n", st.AgentType)
		fmt.Printf("running:    %v\n", st.Running)
		fmt.Printf("started:    %s\n", st.StartTime.Format(time.RFC3339))
		fmt.Printf("last:       %s\n", st.LastActivity.Format(time.RFC3339))
		fmt.Printf("commands:   %d\n", st.CommandsSent)
		if st.Workspace != "" {
			fmt.Printf("workspace:  %s\n", st.Workspace)
		}

	case "output":
		if len(args) < 1 {
			fail(fmt.Errorf("usage: output <id> [max_lines]"))
			break
		}
		maxLines := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				fail(fmt.Errorf("max_lines must be a number"))
				break
			}
			maxLines = n
		}
		lines, err := mgr.Output(args[0], maxLines)
		if err != nil {
			fail(err)
			break
		}
		for _, l := range lines {
			fmt.Println(l)
		}

	case "broadcast":
		if len(args) < 1 {
			fail(fmt.Errorf("usage: broadcast <command...>"))
			break
		}
		mgr.Broadcast(strings.Join(args, " "))

	case "export":
		data, err := mgr.Export()
		if err != nil {
			fail(err)
			break
		}
		fmt.Println(string(data))

	case "quit", "exit":
		return false

	default:
		fail(fmt.Errorf("unknown command %q (try help)", cmd))
	}

	return true
}

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultConfig := `supervisor:
  output_buffer_chunks: 100
  output_buffer_lines: 10000
  kill_grace_period: "500ms"

agents:
  claude_command: "claude"
  gemini_command: "gemini"
  default_workspace: ""

terminal:
  rows: 24
  cols: 80

database:
  # Optional: persist session exports on shutdown.
  # path: "${HOME}/.local/share/conductor/sessions.db"
  path: ""

logging:
  level: "info"
  format: "text"
`

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.New(color.FgGreen).Printf("✓ Created %s\n", configPath)
	return nil
}

func runSessions(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is not configured")
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer st.Close()

	records, err := st.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no persisted sessions")
		return nil
	}

	for _, r := range records {
		fmt.Printf("%-36s  started=%s  exported=%s  commands=%d\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.ExportedAt.Format(time.RFC3339),
			r.TotalCommands)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
