package state

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const lockMaxAge = 24 * time.Hour

var ErrLocked = errors.New("another remote-sync process holds the queue lock")

// Lock serializes processes that mutate the offline queue.
type Lock struct {
	path string
	file *os.File
}

func AcquireLock(paths Paths, command string) (*Lock, error) {
	path := paths.LockPath()
	lock, err := createLock(path, command)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	stale, err := lockIsStale(path, time.Now().UTC(), lockMaxAge)
	if err != nil {
		return nil, err
	}
	if !stale {
		return nil, lockHeldError(path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	lock, err = createLock(path, command)
	if err == nil {
		return lock, nil
	}
	if errors.Is(err, os.ErrExist) {
		return nil, lockHeldError(path)
	}
	return nil, err
}

func lockHeldError(path string) error {
	content, _ := os.ReadFile(path)
	if meta, err := parseLockMeta(content); err == nil {
		return fmt.Errorf("%w (pid %d on %s, running %q)", ErrLocked, meta.PID, meta.Hostname, meta.Command)
	}
	return ErrLocked
}

func createLock(path, command string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if err := writeLockPayload(f, command); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &Lock{path: path, file: f}, nil
}

func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	return os.Remove(l.path)
}

func writeLockPayload(f *os.File, command string) error {
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f,
		"pid=%d\nhostname=%s\ncommand=%s\ncreated_at=%s\n",
		os.Getpid(),
		hostname,
		command,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

type lockMeta struct {
	PID       int
	Hostname  string
	Command   string
	CreatedAt time.Time
}

func parseLockMeta(content []byte) (lockMeta, error) {
	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return lockMeta{}, fmt.Errorf("invalid lock line %q", line)
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	pid, err := strconv.Atoi(values["pid"])
	if err != nil || pid <= 0 {
		return lockMeta{}, fmt.Errorf("invalid lock pid %q", values["pid"])
	}
	hostname := values["hostname"]
	if hostname == "" {
		return lockMeta{}, errors.New("missing lock hostname")
	}
	createdAt, err := time.Parse(time.RFC3339, values["created_at"])
	if err != nil {
		return lockMeta{}, fmt.Errorf("invalid lock created_at %q", values["created_at"])
	}
	return lockMeta{PID: pid, Hostname: hostname, Command: values["command"], CreatedAt: createdAt}, nil
}

// lockIsStale treats a lock as abandoned when it is older than maxAge or its
// owner was a process on this host that no longer exists. Unparseable locks
// are judged by file age alone.
func lockIsStale(path string, now time.Time, maxAge time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	fileAge := max(now.Sub(info.ModTime()), 0)

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	meta, err := parseLockMeta(content)
	if err != nil {
		return fileAge >= maxAge, nil
	}

	createdAge := max(now.Sub(meta.CreatedAt), 0)
	if createdAge >= maxAge || fileAge >= maxAge {
		return true, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return false, err
	}
	return strings.EqualFold(hostname, meta.Hostname) && !isProcessAlive(meta.PID), nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case os.IsPermission(err):
		return true
	default:
		return false
	}
}
