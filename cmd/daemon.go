package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jazzyalex/agent-sessions/internal/cli"
	"github.com/jazzyalex/agent-sessions/internal/daemon"
	"github.com/jazzyalex/agent-sessions/internal/logging"
	"github.com/jazzyalex/agent-sessions/internal/pipeline"
	"github.com/jazzyalex/agent-sessions/internal/store"
)

// runtimeFile is written by a running daemon and removed on exit. It
// doubles as the pid file.
type runtimeFile struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	Roots     []string  `json:"roots"`
}

var (
	flagDaemonAddr     string
	flagDaemonInterval time.Duration
	flagDaemonDetach   bool
	flagDaemonRuntime  string
	flagDaemonLogFile  string
	flagDaemonEvents   int
	flagDaemonChild    bool
	flagDaemonLimit    int
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Keep the catalog warm and serve search over HTTP/SSE",
	Long: `Run a background process that reloads the catalog on an interval (and
on file changes when watching is enabled) and answers searches at
/v1/search without reloading logs for every query.`,
	RunE: runDaemon,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon process and catalog status",
	RunE:  runDaemonStatus,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE:  runDaemonStop,
}

var daemonSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search through the running daemon",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDaemonSearch,
}

func init() {
	pf := daemonCmd.PersistentFlags()
	pf.StringVar(&flagDaemonAddr, "addr", "127.0.0.1:8787", "HTTP listen address")
	pf.StringVar(&flagDaemonRuntime, "runtime-file", filepath.Join(pipeline.CacheDir(), "agent-sessionsd.json"), "Runtime state file")

	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", 5*time.Minute, "Full reload interval")
	daemonCmd.Flags().StringVar(&flagDaemonLogFile, "log-file", filepath.Join(pipeline.CacheDir(), "agent-sessionsd.log"), "Output file in detached mode")
	daemonCmd.Flags().IntVar(&flagDaemonEvents, "events-buffer", 200, "Catalog change events kept in memory")
	daemonCmd.Flags().BoolVar(&flagDaemonDetach, "detach", false, "Run in the background")
	daemonCmd.Flags().BoolVar(&flagDaemonChild, "child", false, "Internal: detached child process")
	_ = daemonCmd.Flags().MarkHidden("child")

	daemonSearchCmd.Flags().IntVar(&flagDaemonLimit, "limit", 20, "Maximum results to show")

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd, daemonSearchCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(_ *cobra.Command, _ []string) error {
	if flagDaemonDetach && flagDaemonChild {
		return errors.New("--detach and --child are exclusive")
	}
	if err := ensureNoDaemon(); err != nil {
		return err
	}
	if flagDaemonDetach {
		return spawnDaemon()
	}
	return serveDaemon()
}

// spawnDaemon re-executes the binary with --child in place of --detach.
func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	args := make([]string, 0, len(os.Args))
	for _, a := range os.Args[1:] {
		if a != "--detach" && !strings.HasPrefix(a, "--detach=") {
			args = append(args, a)
		}
	}
	args = append(args, "--child")

	if err := os.MkdirAll(filepath.Dir(flagDaemonLogFile), 0o750); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	//nolint:gosec // path is chosen by the local user
	out, err := os.OpenFile(flagDaemonLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon output: %w", err)
	}
	defer func() { _ = out.Close() }()

	child := exec.Command(exe, args...) //nolint:gosec // same binary, same arguments
	child.Stdout = out
	child.Stderr = out
	child.Env = os.Environ()
	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("  Started daemon (pid %d)\n", child.Process.Pid)
	fmt.Printf("  API:    http://%s/v1/status\n", flagDaemonAddr)
	fmt.Printf("  Output: %s\n", flagDaemonLogFile)
	return nil
}

func serveDaemon() error {
	roots := cfg.Roots()
	rt := runtimeFile{
		PID:       os.Getpid(),
		Addr:      flagDaemonAddr,
		StartedAt: time.Now(),
		Roots:     pipeline.RootDirs(roots),
	}
	if err := writeRuntime(flagDaemonRuntime, rt); err != nil {
		return err
	}
	defer func() { _ = os.Remove(flagDaemonRuntime) }()

	var cache *store.Cache
	if !flagNoCache {
		c, err := store.Open(pipeline.CachePath())
		if err != nil {
			logging.ForComponent(logging.CompDaemon).Warn("cache_open_failed", "err", err)
		} else {
			cache = c
			defer func() { _ = cache.Close() }()
		}
	}

	svc := daemon.New(daemon.Config{
		Roots:        roots,
		Load:         cfg.LoadOptions(),
		Search:       cfg.SearchOptions(),
		Days:         flagDays,
		Interval:     flagDaemonInterval,
		Addr:         flagDaemonAddr,
		EventsBuffer: flagDaemonEvents,
		Watch:        cfg.General.Watch,
	}, cache)

	fmt.Printf("  agent-sessions daemon on http://%s\n", flagDaemonAddr)
	fmt.Printf("  Roots: %s\n", strings.Join(rt.Roots, ", "))
	fmt.Printf("  Reload every %s", flagDaemonInterval)
	if cfg.General.Watch {
		fmt.Print(", watching for changes")
	}
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// liveDaemon returns the runtime file of a running daemon.
func liveDaemon() (runtimeFile, error) {
	rt, err := readRuntime(flagDaemonRuntime)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rt, errors.New("daemon is not running")
		}
		return rt, err
	}
	if !processAlive(rt.PID) {
		return rt, fmt.Errorf("daemon is not running (stale runtime file for pid %d)", rt.PID)
	}
	return rt, nil
}

func ensureNoDaemon() error {
	rt, err := readRuntime(flagDaemonRuntime)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if processAlive(rt.PID) {
		return fmt.Errorf("daemon already running (pid %d)", rt.PID)
	}
	_ = os.Remove(flagDaemonRuntime)
	return nil
}

// daemonGet decodes a JSON response from the daemon API into out.
func daemonGet(addr, path string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get("http://" + addr + path) //nolint:noctx // local API probe
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Error != "" {
			return errors.New(body.Error)
		}
		return fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding daemon response: %w", err)
	}
	return nil
}

func runDaemonStatus(_ *cobra.Command, _ []string) error {
	rt, err := liveDaemon()
	if err != nil {
		fmt.Printf("  Daemon: %v\n", err)
		return nil
	}

	fmt.Printf("  Daemon PID: %d (up %s)\n", rt.PID, cli.FormatElapsed(time.Since(rt.StartedAt)))
	fmt.Printf("  Address:    http://%s\n", rt.Addr)

	var st daemon.Status
	if err := daemonGet(rt.Addr, "/v1/status", &st); err != nil {
		fmt.Printf("  API: %v\n", err)
		return nil
	}
	if st.LastLoadAt.IsZero() {
		fmt.Println("  Last load:  pending")
	} else {
		fmt.Printf("  Last load:  %s (%d loads)\n", cli.FormatAge(st.LastLoadAt), st.LoadCount)
	}
	fmt.Printf("  Watching:   %t\n", st.Watching)
	fmt.Printf("  Sessions:   %s (%s indexed)\n",
		cli.FormatNumber(int64(st.Summary.Documents)), cli.FormatNumber(int64(st.Summary.Indexed)))
	fmt.Printf("  Prompts:    %s in %d repos\n", cli.FormatNumber(int64(st.Summary.Prompts)), st.Summary.Repos)
	if st.LastError != "" {
		fmt.Println(cli.RenderWarning("  Last error: " + st.LastError))
	}
	return nil
}

func runDaemonStop(_ *cobra.Command, _ []string) error {
	rt, err := liveDaemon()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(rt.PID)
	if err != nil {
		return fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal daemon: %w", err)
	}

	deadline := time.Now().Add(8 * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(rt.PID) {
			_ = os.Remove(flagDaemonRuntime)
			fmt.Printf("  Stopped daemon (pid %d)\n", rt.PID)
			return nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not exit in time", rt.PID)
}

func runDaemonSearch(_ *cobra.Command, args []string) error {
	rt, err := liveDaemon()
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("q", strings.Join(args, " "))
	q.Set("limit", strconv.Itoa(flagDaemonLimit))
	if flagRepo != "" {
		q.Set("repo", flagRepo)
	}
	if flagSource != "" {
		q.Set("source", flagSource)
	}
	if flagDeep {
		q.Set("deep", "1")
	}

	var resp daemon.SearchResponse
	if err := daemonGet(rt.Addr, "/v1/search?"+q.Encode(), &resp); err != nil {
		return err
	}
	if len(resp.Results) == 0 {
		fmt.Printf("\n  No matches for %q.\n\n", resp.Query)
		return nil
	}

	rows := make([][]string, 0, len(resp.Results))
	for _, h := range resp.Results {
		rows = append(rows, []string{
			cli.ShortID(h.ID),
			h.Source,
			cli.Truncate(h.Repo, 20),
			strconv.Itoa(h.Matches),
			cli.Truncate(h.Snippet, 60),
		})
	}
	fmt.Println()
	fmt.Print(cli.RenderTable(cli.Table{
		Title:   fmt.Sprintf("%q via daemon", resp.Query),
		Headers: []string{"ID", "Source", "Repo", "Hits", "Snippet"},
		Rows:    rows,
	}))
	fmt.Printf("\n  %d of %d results, phase %s", len(resp.Results), resp.Total, resp.Phase)
	if resp.StoppedEarly {
		fmt.Print(", stopped early (use --deep)")
	}
	if resp.Skipped > 0 {
		fmt.Printf(", %d unreadable", resp.Skipped)
	}
	fmt.Print("\n\n")
	return nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func writeRuntime(path string, rt runtimeFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}
	data, err := json.MarshalIndent(rt, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func readRuntime(path string) (runtimeFile, error) {
	var rt runtimeFile
	//nolint:gosec // path is chosen by the local user
	data, err := os.ReadFile(path)
	if err != nil {
		return rt, err
	}
	if err := json.Unmarshal(data, &rt); err != nil {
		return rt, fmt.Errorf("reading %s: %w", path, err)
	}
	return rt, nil
}
