package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// confirmMarker is the tunnel client log line that signals an established
// connection.
const confirmMarker = "Registered tunnel connection"

const outputTailLimit = 4096
const killWait = 5 * time.Second

// tunnelProcess wraps the spawned tunnel client: it scans combined output
// for the confirmation marker and keeps a tail of output for error reports.
type tunnelProcess struct {
	cmd       *exec.Cmd
	confirmed chan struct{}
	exited    chan struct{}

	confirmOnce sync.Once

	mu      sync.Mutex
	tail    []byte
	exitErr error
}

// spawnTunnel starts the tunnel client. Routing rules live remotely, so the
// arguments only reference the credentials file and the tunnel id.
func spawnTunnel(binPath, credsPath, tunnelID string, logger *slog.Logger) (*tunnelProcess, error) {
	cmd := exec.Command(binPath, "tunnel", "run", "--no-autoupdate", "--cred-file", credsPath, tunnelID)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn tunnel client: %w", err)
	}

	p := &tunnelProcess{
		cmd:       cmd,
		confirmed: make(chan struct{}),
		exited:    make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go p.scan(stdout, &readers, logger)
	go p.scan(stderr, &readers, logger)
	go func() {
		readers.Wait()
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.exited)
	}()
	return p, nil
}

func (p *tunnelProcess) scan(r io.Reader, readers *sync.WaitGroup, logger *slog.Logger) {
	defer readers.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("tunnel client output", "line", line)
		p.appendTail(line)
		if strings.Contains(line, confirmMarker) {
			p.confirmOnce.Do(func() { close(p.confirmed) })
		}
	}
}

func (p *tunnelProcess) appendTail(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tail = append(p.tail, line...)
	p.tail = append(p.tail, '\n')
	if len(p.tail) > outputTailLimit {
		p.tail = p.tail[len(p.tail)-outputTailLimit:]
	}
}

// exitError reports why the process ended, including the exit code and the
// captured output tail.
func (p *tunnelProcess) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	code := 0
	if exitErr, ok := p.exitErr.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	}
	tail := strings.TrimSpace(string(p.tail))
	return fmt.Errorf("tunnel client exited before confirming connection (exit code %d): %s", code, tail)
}

// kill terminates the process and waits briefly for it to reap.
func (p *tunnelProcess) kill() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	if p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	select {
	case <-p.exited:
	case <-time.After(killWait):
	}
	return nil
}
