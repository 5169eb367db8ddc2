package provider

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/happyclaw/supervisor/internal/procutil"
	"github.com/happyclaw/supervisor/internal/ptyparser"
	"github.com/happyclaw/supervisor/internal/types"
)

// defaultCols/defaultRows size every PTY this provider starts. A fixed
// size keeps output classification (ptyparser's prefix/suffix rules)
// stable regardless of what the connecting client's own terminal measures.
const (
	defaultCols = 200
	defaultRows = 50
)

// ptySession drives a child process attached to a pseudo-terminal,
// classifying its line-buffered output with ptyparser.
type ptySession struct {
	id      string
	cwd     string
	ownerID string

	cmd    *exec.Cmd
	ptmx   ptyFile
	exited chan struct{} // closed once cmd.Wait returns

	mode   types.SessionMode
	modeMu sync.Mutex

	rules *ptyparser.RuleSet

	cbMu     sync.Mutex
	onMsg    func(types.SessionMessage)
	onEvent  func(types.SessionEvent)
	stopOnce sync.Once
}

// ptyFile is the subset of *os.File the provider needs from the PTY
// master, narrowed so a future in-memory substitute can satisfy it too.
type ptyFile interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// NewPTYFactory returns a Factory that spawns req.Command under a PTY.
func NewPTYFactory() Factory {
	return func(ctx context.Context, req SpawnRequest) (Session, error) {
		if len(req.Command) == 0 {
			return nil, &types.SpawnFailedError{Provider: "pty", Err: errEmptyCommand}
		}

		cmd := exec.Command(req.Command[0], req.Command[1:]...)
		cmd.Dir = req.Cwd
		cmd.Env = append(os.Environ(), "TERM=xterm-256color")
		for k, v := range req.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}

		// pty.Start puts the child in its own session (setsid), which makes
		// it a process-group leader in its own right (pgid == pid); Stop
		// relies on that to signal the whole group without us setting
		// SysProcAttr.Setpgid ourselves and fighting pty.Start's own Ctty
		// wiring.
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, &types.SpawnFailedError{Provider: "pty", Err: err}
		}
		_ = pty.Setsize(ptmx, &pty.Winsize{Rows: defaultRows, Cols: defaultCols})

		s := &ptySession{
			id:      req.SessionID,
			cwd:     req.Cwd,
			ownerID: req.OwnerID,
			cmd:     cmd,
			ptmx:    ptmx,
			exited:  make(chan struct{}),
			mode:    types.ModeLocal,
			rules:   ptyparser.NewRuleSet(),
		}
		go func() {
			_ = cmd.Wait()
			close(s.exited)
		}()
		go s.readLoop()
		return s, nil
	}
}

var errEmptyCommand = errString("pty provider requires a non-empty command")

type errString string

func (e errString) Error() string { return string(e) }

func (s *ptySession) ID() string            { return s.id }
func (s *ptySession) Provider() Kind        { return KindPTY }
func (s *ptySession) Cwd() string           { return s.cwd }
func (s *ptySession) Mode() types.SessionMode {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	return s.mode
}

func (s *ptySession) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *ptySession) OnMessage(f func(types.SessionMessage)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onMsg = f
}

func (s *ptySession) OnEvent(f func(types.SessionEvent)) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.onEvent = f
}

func (s *ptySession) emitMessage(m types.SessionMessage) {
	s.cbMu.Lock()
	cb := s.onMsg
	s.cbMu.Unlock()
	if cb != nil {
		cb(m)
	}
}

func (s *ptySession) emitEvent(e types.SessionEvent) {
	s.cbMu.Lock()
	cb := s.onEvent
	s.cbMu.Unlock()
	if cb != nil {
		cb(e)
	}
}

// readLoop scans the PTY master line by line, stripping ANSI escapes
// before handing each line to the rule set. It exits when the PTY closes
// (child exited, or Stop closed the master) and then always emits one
// info-severity error event; the child's exit status is not inspected.
func (s *ptySession) readLoop() {
	scanner := bufio.NewScanner(s.ptmx)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		clean := stripANSI(scanner.Text())

		if ev, ok := s.rules.DetectEvent(clean, s.id); ok {
			s.emitEvent(ev)
		}
		if msg, ok := s.rules.Parse(clean); ok {
			s.emitMessage(msg)
		}
	}

	s.emitEvent(types.SessionEvent{
		Kind:      types.EventError,
		Severity:  types.SeverityInfo,
		SessionID: s.id,
		Timestamp: time.Now(),
		Summary:   "pty session ended",
	})
}

func (s *ptySession) Send(ctx context.Context, text string) error {
	filtered, ok := ptyparser.FilterInput(text)
	if !ok {
		return &types.InputBlockedError{Reason: "input contains a disallowed control byte"}
	}
	_, err := s.ptmx.Write([]byte(filtered))
	return err
}

// RespondToPermission has no native hook on a raw PTY: the convention is
// that callers answer the prompt by sending the expected keystroke
// ("y\r"/"n\r") through Send. This method exists so ptySession satisfies
// Session, and answers generically: requestID is not checked.
func (s *ptySession) RespondToPermission(ctx context.Context, requestID string, allow bool) error {
	answer := "n\r"
	if allow {
		answer = "y\r"
	}
	return s.Send(ctx, answer)
}

func (s *ptySession) SwitchMode(ctx context.Context, mode types.SessionMode) error {
	s.modeMu.Lock()
	defer s.modeMu.Unlock()
	if mode == s.mode {
		return nil
	}
	// A PTY session has no remote counterpart to hand off to; the mode
	// field only tracks what the session manager believes, not a live
	// transition.
	s.mode = mode
	return nil
}

// Stop sends SIGTERM to the child's process group, waits for it to exit
// or ctx to expire, escalates to SIGKILL, then closes the PTY master.
func (s *ptySession) Stop(ctx context.Context) error {
	var closeErr error
	s.stopOnce.Do(func() {
		if s.cmd.Process != nil {
			procutil.TerminateGroup(ctx, s.cmd.Process.Pid, s.exited)
		}
		closeErr = s.ptmx.Close()
	})
	return closeErr
}

// stripANSI removes CSI/OSC escape sequences so downstream classification
// sees plain text, the same scrubbing trellis' terminal handler performs
// with strings.ToValidUTF8 before forwarding bytes to a client, except
// here the goal is semantic classification rather than display safety.
func stripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b { // ESC
			i++
			if i >= len(s) {
				break
			}
			switch s[i] {
			case '[': // CSI: ESC [ ... final-byte in 0x40-0x7E
				i++
				for i < len(s) && (s[i] < 0x40 || s[i] > 0x7e) {
					i++
				}
			case ']': // OSC: ESC ] ... BEL or ESC \
				i++
				for i < len(s) && s[i] != 0x07 {
					if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '\\' {
						i++
						break
					}
					i++
				}
			default:
				// single-character escape, already consumed
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
