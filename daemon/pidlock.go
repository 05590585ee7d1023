// Copyright (C) 2025 vagent-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package daemon implements the agent process's single-instance pidfile
// lock and the pipe-ack daemonization handshake (section 6).
package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// AlreadyRunningExitCode is the status the agent exits with when it fails to
// acquire the pidfile lock; the CLI treats this as "already running, fine".
const AlreadyRunningExitCode = 23

// ErrAlreadyRunning is returned by AcquirePidLock when another process
// already holds the lock.
var ErrAlreadyRunning = errors.New("daemon: another agent instance is already running")

// PidLock holds an exclusive, non-blocking flock on the agent's pidfile for
// the lifetime of the process. The file itself carries the holder's PID,
// readable with ReadPid without asking the lock; `vagent stop-agent` does
// not use it and stops the agent with an IPC Quit instead.
type PidLock struct {
	file *os.File
	path string
}

// AcquirePidLock opens (creating if absent) the pidfile at path and takes a
// non-blocking exclusive flock on it, the same primitive locked.Bytes
// already pulls golang.org/x/sys/unix in for. On success the file is
// truncated and rewritten with the current PID. If another process holds
// the lock, returns ErrAlreadyRunning.
func AcquirePidLock(path string) (*PidLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("daemon: open pidfile: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("daemon: flock pidfile: %w", err)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		f.Close()
		return nil, err
	}

	return &PidLock{file: f, path: path}, nil
}

// Release unlocks and removes the pidfile. Safe to call once; the process
// exiting also releases the flock implicitly, but an explicit Release keeps
// a stale pidfile from confusing the next start.
func (l *PidLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
	return err
}

// ReadPid returns the PID recorded in the pidfile at path without acquiring
// the lock. The CLI's `stop-agent` does not call it; it sends an IPC Quit.
func ReadPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("daemon: malformed pidfile: %w", err)
	}
	return pid, nil
}
