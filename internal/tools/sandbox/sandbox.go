// Package sandbox runs analyst code in a separate interpreter process.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config configures the interpreter process.
type Config struct {
	Interpreter    []string      `mapstructure:"interpreter" json:"interpreter"`
	WorkDir        string        `mapstructure:"work_dir" json:"work_dir"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes" json:"max_output_bytes"`
}

// DefaultConfig runs python3 reading the program from stdin.
func DefaultConfig() Config {
	return Config{
		Interpreter:    []string{"python3", "-"},
		Timeout:        60 * time.Second,
		MaxOutputBytes: 64 << 10,
	}
}

// Process executes each program in a fresh interpreter.
type Process struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a process sandbox. Zero fields take defaults.
func New(cfg Config, logger *zap.Logger) *Process {
	d := DefaultConfig()
	if len(cfg.Interpreter) == 0 {
		cfg.Interpreter = d.Interpreter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = d.MaxOutputBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Process{cfg: cfg, logger: logger}
}

// Execute runs code and returns its combined report. Every failure is
// described in the returned text.
func (p *Process) Execute(ctx context.Context, code string) string {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.Interpreter[0], p.cfg.Interpreter[1:]...)
	cmd.Stdin = strings.NewReader(code)
	cmd.WaitDelay = time.Second
	if p.cfg.WorkDir != "" {
		if _, err := os.Stat(p.cfg.WorkDir); err != nil {
			return fmt.Sprintf("Error executing code: working directory unavailable: %v", err)
		}
		cmd.Dir = p.cfg.WorkDir
	}
	stdout := &cappedBuffer{max: p.cfg.MaxOutputBytes}
	stderr := &cappedBuffer{max: p.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	p.logger.Debug("Sandbox run finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("stdout_bytes", stdout.total),
		zap.Int64("stderr_bytes", stderr.total),
		zap.Error(err))

	var sb strings.Builder
	sb.WriteString(stdout.String())
	if stderr.total > 0 {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr.String())
	}

	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return appendLine(sb.String(), fmt.Sprintf("Error executing code: timed out after %s", p.cfg.Timeout))
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return appendLine(sb.String(), fmt.Sprintf("Process exited with status %d", exitErr.ExitCode()))
		}
		return appendLine(sb.String(), fmt.Sprintf("Error executing code: %v", err))
	}
	if sb.Len() == 0 {
		return "Code executed successfully with no output."
	}
	return sb.String()
}

// cappedBuffer keeps the first max bytes written and counts the rest. Writes
// never fail, so the child is not killed by a broken pipe.
type cappedBuffer struct {
	buf   bytes.Buffer
	max   int
	total int64
}

func (c *cappedBuffer) Write(b []byte) (int, error) {
	c.total += int64(len(b))
	if room := c.max - c.buf.Len(); room > 0 {
		if len(b) > room {
			c.buf.Write(b[:room])
		} else {
			c.buf.Write(b)
		}
	}
	return len(b), nil
}

func (c *cappedBuffer) truncated() bool { return c.total > int64(c.buf.Len()) }

func (c *cappedBuffer) String() string {
	if !c.truncated() {
		return c.buf.String()
	}
	return strings.ToValidUTF8(c.buf.String(), "") + "\n...[output truncated]"
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s + line
}
