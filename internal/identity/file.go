package identity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 50 * time.Millisecond

// FileProvider derives the connection from an account file: the first line of
// the file is the connected account; a missing or empty file means
// disconnected. Another process (a wallet helper, a shell script) can connect
// or disconnect by writing or removing the file while Watch is running.
type FileProvider struct {
	hub
	path   string
	logger *slog.Logger
}

var (
	_ Provider  = (*FileProvider)(nil)
	_ Connector = (*FileProvider)(nil)
)

// NewFileProvider creates the file's directory if needed and loads the
// initial state.
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("identity: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("identity: mkdir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &FileProvider{path: abs, logger: logger}
	p.reload()
	return p, nil
}

// Path returns the absolute path of the account file.
func (p *FileProvider) Path() string { return p.path }

// Connect writes account to the file.
func (p *FileProvider) Connect(_ context.Context, account string) error {
	if err := ValidateAccount(account); err != nil {
		return err
	}
	if err := writeFileAtomic(p.path, []byte(account+"\n")); err != nil {
		return err
	}
	p.reload()
	return nil
}

// Disconnect removes the file.
func (p *FileProvider) Disconnect(_ context.Context) error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("identity: remove account file: %w", err)
	}
	p.reload()
	return nil
}

func (p *FileProvider) reload() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("identity: read account file failed",
				slog.String("path", p.path), slog.String("error", err.Error()))
		}
		p.apply(State{})
		return
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	account := ""
	if sc.Scan() {
		account = string(bytes.TrimSpace(sc.Bytes()))
	}
	if account == "" {
		p.apply(State{})
		return
	}
	if err := ValidateAccount(account); err != nil {
		p.logger.Warn("identity: ignoring invalid account file",
			slog.String("path", p.path), slog.String("error", err.Error()))
		p.apply(State{})
		return
	}
	p.apply(State{Connected: true, Account: account})
}

func (p *FileProvider) apply(st State) {
	if p.set(st) {
		p.logger.Info("identity: connection changed",
			slog.Bool("connected", st.Connected), slog.String("account", st.Account))
	}
}

// Watch follows the account file until ctx is cancelled. Bursts of events
// (editors often write, chmod and rename in quick succession) are coalesced
// into one reload.
func (p *FileProvider) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("identity: new watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory: the file itself may not exist yet, and atomic
	// writes replace its inode.
	if err := w.Add(filepath.Dir(p.path)); err != nil {
		return fmt.Errorf("identity: watch %s: %w", filepath.Dir(p.path), err)
	}
	p.logger.Info("identity: watching account file", slog.String("path", p.path))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(reloadDebounce)
			timerCh = timer.C
		} else {
			timer.Reset(reloadDebounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case <-timerCh:
			p.reload()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != p.path {
				continue
			}
			schedule()

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn("identity: watcher error", slog.String("error", werr.Error()))
		}
	}
}

// writeFileAtomic writes content through a temp file, fsync and rename.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".chainpad-tmp-*")
	if err != nil {
		return fmt.Errorf("identity: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("identity: write temp: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("identity: chmod temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("identity: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("identity: rename: %w", err)
	}
	success = true
	return nil
}
