// Package volume adjusts the speaker level through an ALSA mixer command.
package volume

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"sync"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/mattn/go-shellwords"
)

// Runner executes a mixer command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

var levelPattern = regexp.MustCompile(`\[(\d{1,3})%\]`)

type Control struct {
	base    []string
	control string
	step    int
	max     int
	run     Runner
	mu      sync.Mutex
}

// New parses cfg.Command, for example "amixer -D pulse". run may be nil.
func New(cfg config.VolumeConfig, run Runner) (*Control, error) {
	args, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse volume command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("volume command is empty")
	}
	if run == nil {
		run = execRunner
	}
	return &Control{base: args, control: cfg.Control, step: cfg.Step, max: cfg.Max, run: run}, nil
}

func (c *Control) command(ctx context.Context, extra ...string) ([]byte, error) {
	args := append(append([]string{}, c.base[1:]...), extra...)
	out, err := c.run(ctx, c.base[0], args...)
	if err != nil {
		return nil, fmt.Errorf("%s %v: %w", c.base[0], args, err)
	}
	return out, nil
}

// Get returns the current level in percent.
func (c *Control) Get(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(ctx)
}

func (c *Control) getLocked(ctx context.Context) (int, error) {
	out, err := c.command(ctx, "get", c.control)
	if err != nil {
		return 0, err
	}
	m := levelPattern.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("no volume level in mixer output")
	}
	return strconv.Atoi(string(m[1]))
}

// Set clamps level to [0, max] and applies it.
func (c *Control) Set(ctx context.Context, level int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(ctx, level)
}

func (c *Control) setLocked(ctx context.Context, level int) (int, error) {
	level = min(c.max, max(0, level))
	if _, err := c.command(ctx, "sset", c.control, strconv.Itoa(level)+"%"); err != nil {
		return 0, err
	}
	return level, nil
}

func (c *Control) adjust(ctx context.Context, delta int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current, err := c.getLocked(ctx)
	if err != nil {
		return 0, err
	}
	return c.setLocked(ctx, current+delta)
}

func (c *Control) Up(ctx context.Context) (int, error) { return c.adjust(ctx, c.step) }

func (c *Control) Down(ctx context.Context) (int, error) { return c.adjust(ctx, -c.step) }
