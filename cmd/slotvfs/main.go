// slotvfs is an interactive CLI for inspecting and driving a slot pool
// directory.
//
// Usage:
//
//	slotvfs [flags] <pool-dir>        Open a pool directory (created if missing)
//	slotvfs [flags]                   Open the pool directory from the config file
//
// Flags:
//
//	-c, --config     Path to a JSONC config file (default: ~/.config/slotvfs/config.json)
//	-a, --add        Add N slots of capacity before starting the REPL
//
// Commands (in REPL):
//
//	add <n>                          Add n slots of capacity
//	rm <n>                           Remove up to n free slots
//	create <path>                    Bind a free slot to a logical path
//	write <path> <off> <text>        Write text at a logical offset
//	read <path> <off> <len>          Read len bytes at a logical offset
//	truncate <path> <size>           Set the logical file size
//	delete <path>                    Remove a binding, freeing its slot
//	ls                               List bound logical paths
//	info                             Show pool capacity and format info
//	setdir <dir>                     Persist dir as the default pool directory
//	help                             Show this help
//	exit / quit / q                  Exit
package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/slotvfs/pkg/blockdir"
	"github.com/calvinalkan/slotvfs/pkg/slotpool"
	"github.com/calvinalkan/slotvfs/pkg/vfs"
)

// Config holds CLI defaults loaded from a JSONC config file.
type Config struct {
	PoolDir string `json:"pool_dir"`
}

// defaultConfigPath returns ~/.config/slotvfs/config.json, honoring
// XDG_CONFIG_HOME. Empty string if no home directory is available.
func defaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "slotvfs", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "slotvfs", "config.json")
}

// loadConfig reads a JSONC (JSON with comments/trailing commas) config file.
// A missing file is not an error; it just yields zero defaults.
func loadConfig(path string) (Config, error) {
	var cfg Config

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := json.Unmarshal(std, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// saveConfig writes the config atomically (temp file + rename), so a crash
// mid-write never leaves a half-written config behind.
func saveConfig(path string, cfg Config) error {
	if path == "" {
		return errors.New("no config path available")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, strings.NewReader(string(data)+"\n")); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}

	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("slotvfs", flag.ContinueOnError)

	configPath := fs.StringP("config", "c", defaultConfigPath(), "path to JSONC config file")
	addCapacity := fs.IntP("add", "a", 0, "add N slots of capacity before starting the REPL")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: slotvfs [flags] [pool-dir]\n\nFlags:\n%s", fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	poolDir := cfg.PoolDir
	if fs.NArg() > 0 {
		poolDir = fs.Arg(0)
	}

	if poolDir == "" {
		fs.Usage()

		return errors.New("no pool directory given and none configured")
	}

	dir, err := blockdir.OpenReal(poolDir)
	if err != nil {
		return err
	}
	defer dir.Close()

	pool := slotpool.New(dir)
	if err := pool.Attach(); err != nil {
		return fmt.Errorf("attaching pool: %w", err)
	}
	defer pool.Close()

	if *addCapacity > 0 {
		added, err := pool.AddCapacity(*addCapacity)
		if err != nil {
			return fmt.Errorf("added %d of %d slots: %w", added, *addCapacity, err)
		}
	}

	repl := &REPL{
		pool:       pool,
		fs:         vfs.New(pool),
		dir:        dir,
		configPath: *configPath,
	}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	pool       *slotpool.Pool
	fs         *vfs.FS
	dir        *blockdir.Real
	configPath string
	liner      *liner.State
}

var replCommands = []string{
	"add", "rm", "create", "write", "read", "truncate",
	"delete", "ls", "info", "setdir", "help", "exit", "quit",
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".slotvfs_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range replCommands {
			if strings.HasPrefix(c, strings.ToLower(line)) {
				out = append(out, c)
			}
		}

		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("slotvfs - slot pool CLI (%s: %d slots, %d bound)\n",
		r.dir.Path(), r.pool.Cap(), r.pool.Len())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("slotvfs> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		cmdArgs := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "add":
			r.cmdAdd(cmdArgs)

		case "rm":
			r.cmdRemove(cmdArgs)

		case "create":
			r.cmdCreate(cmdArgs)

		case "write":
			r.cmdWrite(cmdArgs)

		case "read":
			r.cmdRead(cmdArgs)

		case "truncate":
			r.cmdTruncate(cmdArgs)

		case "delete", "del":
			r.cmdDelete(cmdArgs)

		case "ls", "list":
			r.cmdList()

		case "info":
			r.cmdInfo()

		case "setdir":
			r.cmdSetDir(cmdArgs)

		default:
			fmt.Printf("unknown command: %s (try 'help')\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		_, _ = r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  add <n>                    Add n slots of capacity")
	fmt.Println("  rm <n>                     Remove up to n free slots")
	fmt.Println("  create <path>              Bind a free slot to a logical path")
	fmt.Println("  write <path> <off> <text>  Write text at a logical offset")
	fmt.Println("  read <path> <off> <len>    Read len bytes at a logical offset")
	fmt.Println("  truncate <path> <size>     Set the logical file size")
	fmt.Println("  delete <path>              Remove a binding, freeing its slot")
	fmt.Println("  ls                         List bound logical paths")
	fmt.Println("  info                       Show pool capacity and format info")
	fmt.Println("  setdir <dir>               Persist dir as the default pool directory")
	fmt.Println("  exit / quit / q            Exit")
}

func (r *REPL) cmdAdd(args []string) {
	n, ok := parseIntArg(args, 0, "add <n>")
	if !ok {
		return
	}

	added, err := r.pool.AddCapacity(n)
	if err != nil {
		fmt.Printf("added %d of %d slots: %v\n", added, n, err)

		return
	}

	fmt.Printf("added %d slots (capacity now %d)\n", added, r.pool.Cap())
}

func (r *REPL) cmdRemove(args []string) {
	n, ok := parseIntArg(args, 0, "rm <n>")
	if !ok {
		return
	}

	removed, err := r.pool.RemoveCapacity(n)
	if err != nil {
		fmt.Printf("removed %d of %d slots: %v\n", removed, n, err)

		return
	}

	fmt.Printf("removed %d slots (capacity now %d, %d free)\n",
		removed, r.pool.Cap(), r.pool.FreeSlots())
}

func (r *REPL) cmdCreate(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: create <path>")

		return
	}

	f, err := r.fs.Open(args[0], vfs.Create)
	if err != nil {
		fmt.Printf("create failed: %v\n", err)

		return
	}
	defer f.Close()

	fmt.Printf("bound %s (%d free slots left)\n", args[0], r.pool.FreeSlots())
}

func (r *REPL) cmdWrite(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: write <path> <off> <text>")

		return
	}

	off, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Printf("invalid offset: %v\n", err)

		return
	}

	f, err := r.fs.Open(args[0], vfs.Create)
	if err != nil {
		fmt.Printf("open failed: %v\n", err)

		return
	}
	defer f.Close()

	data := []byte(strings.Join(args[2:], " "))
	if err := f.Write(data, off); err != nil {
		fmt.Printf("write failed: %v\n", err)

		return
	}

	size, _ := f.Size()
	fmt.Printf("wrote %d bytes at offset %d (file size %d)\n", len(data), off, size)
}

func (r *REPL) cmdRead(args []string) {
	if len(args) < 3 {
		fmt.Println("usage: read <path> <off> <len>")

		return
	}

	off, offErr := strconv.ParseInt(args[1], 10, 64)
	length, lenErr := strconv.Atoi(args[2])

	if offErr != nil || lenErr != nil || length < 0 {
		fmt.Println("invalid offset or length")

		return
	}

	f, err := r.fs.Open(args[0], 0)
	if err != nil {
		fmt.Printf("open failed: %v\n", err)

		return
	}
	defer f.Close()

	buf := make([]byte, length)

	n, short, err := f.Read(buf, off)
	if err != nil {
		fmt.Printf("read failed: %v\n", err)

		return
	}

	fmt.Println(hex.Dump(buf))

	if short {
		fmt.Printf("(short read: %d of %d bytes available, rest zero-filled)\n", n, length)
	}
}

func (r *REPL) cmdTruncate(args []string) {
	if len(args) < 2 {
		fmt.Println("usage: truncate <path> <size>")

		return
	}

	size, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		fmt.Printf("invalid size: %v\n", err)

		return
	}

	f, err := r.fs.Open(args[0], 0)
	if err != nil {
		fmt.Printf("open failed: %v\n", err)

		return
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		fmt.Printf("truncate failed: %v\n", err)

		return
	}

	fmt.Printf("truncated %s to %d bytes\n", args[0], size)
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: delete <path>")

		return
	}

	if !r.fs.Access(args[0]) {
		fmt.Printf("%s is not bound (no-op)\n", args[0])

		return
	}

	if err := r.fs.Delete(args[0]); err != nil {
		fmt.Printf("delete failed: %v\n", err)

		return
	}

	fmt.Printf("deleted %s (%d free slots)\n", args[0], r.pool.FreeSlots())
}

func (r *REPL) cmdList() {
	paths := r.pool.Paths()
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Println("no bindings")

		return
	}

	for _, p := range paths {
		f, err := r.fs.Open(p, 0)
		if err != nil {
			fmt.Printf("  %s (unreadable: %v)\n", p, err)

			continue
		}

		size, err := f.Size()
		f.Close()

		if err != nil {
			fmt.Printf("  %s (unreadable: %v)\n", p, err)

			continue
		}

		fmt.Printf("  %-40s %8d bytes\n", p, size)
	}
}

func (r *REPL) cmdInfo() {
	fmt.Printf("Pool directory:  %s\n", r.dir.Path())
	fmt.Printf("Capacity:        %d slots\n", r.pool.Cap())
	fmt.Printf("Bound:           %d\n", r.pool.Len())
	fmt.Printf("Free:            %d\n", r.pool.FreeSlots())
	fmt.Printf("Header size:     %d bytes (%d path + %d digest)\n",
		slotpool.HeaderSize, slotpool.PathFieldSize, slotpool.DigestSize)
}

func (r *REPL) cmdSetDir(args []string) {
	if len(args) < 1 {
		fmt.Println("usage: setdir <dir>")

		return
	}

	abs, err := filepath.Abs(args[0])
	if err != nil {
		fmt.Printf("resolving dir: %v\n", err)

		return
	}

	if err := saveConfig(r.configPath, Config{PoolDir: abs}); err != nil {
		fmt.Printf("saving config: %v\n", err)

		return
	}

	fmt.Printf("default pool directory set to %s (%s)\n", abs, r.configPath)
}

// parseIntArg parses args[i] as a non-negative int, printing usage on error.
func parseIntArg(args []string, i int, usage string) (int, bool) {
	if len(args) <= i {
		fmt.Printf("usage: %s\n", usage)

		return 0, false
	}

	n, err := strconv.Atoi(args[i])
	if err != nil || n < 0 {
		fmt.Printf("invalid count: %s\n", args[i])

		return 0, false
	}

	return n, true
}
