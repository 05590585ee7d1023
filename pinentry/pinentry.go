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

// Package pinentry drives an external `pinentry` program over its Assuan
// line protocol to prompt the user for a secret.
package pinentry

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/vagent-project/vagent/errkind"
)

// Runner abstracts command execution so dispatcher tests can stub it
// without spawning a real pinentry binary.
type Runner interface {
	// Prompt writes prompt/description and a title to pinentry and returns
	// the secret the user entered.
	Prompt(ctx context.Context, title, prompt, desc, tty string, env map[string]string) (string, error)
}

// ExecRunner runs the system `pinentry` binary.
type ExecRunner struct {
	// Path overrides the binary name; empty means "pinentry" on $PATH.
	Path string
}

// Prompt implements Runner by exec'ing pinentry and speaking its
// line-oriented Assuan-subset protocol: SETTITLE, SETPROMPT, SETDESC, then
// GETPIN, reading one "OK" acknowledgement per command and a trailing
// "D <secret>" data line.
func (r ExecRunner) Prompt(ctx context.Context, title, prompt, desc, tty string, env map[string]string) (string, error) {
	bin := r.Path
	if bin == "" {
		bin = "pinentry"
	}

	args := []string{}
	if tty != "" {
		args = append(args, "-T", tty)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return "", err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}

	if err := cmd.Start(); err != nil {
		return "", errkind.Wrap(errkind.KindPinentryError, err, "failed to start pinentry")
	}

	reader := bufio.NewReader(stdout)

	send := func(line string) error {
		if _, err := io.WriteString(stdin, line+"\n"); err != nil {
			return err
		}
		resp, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		if !strings.HasPrefix(resp, "OK") {
			return errkind.New(errkind.KindPinentryError, "pinentry rejected command: "+strings.TrimSpace(resp))
		}
		return nil
	}

	if err := send("SETTITLE " + title); err != nil {
		stdin.Close()
		cmd.Wait()
		return "", err
	}
	if err := send("SETPROMPT " + prompt); err != nil {
		stdin.Close()
		cmd.Wait()
		return "", err
	}
	if err := send("SETDESC " + desc); err != nil {
		stdin.Close()
		cmd.Wait()
		return "", err
	}
	if _, err := io.WriteString(stdin, "GETPIN\n"); err != nil {
		stdin.Close()
		cmd.Wait()
		return "", err
	}
	stdin.Close()

	var secret string
	var found bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "OK"):
			continue
		case strings.HasPrefix(line, "D "):
			secret = line[2:]
			found = true
		}
	}

	if err := cmd.Wait(); err != nil && !found {
		return "", errkind.Wrap(errkind.KindPinentryError, err, "pinentry exited without a response")
	}
	if !found {
		return "", errkind.New(errkind.KindPinentryError, fmt.Sprintf("failed to parse pinentry output for prompt %q", prompt))
	}

	return secret, nil
}

// Prompt is the package-level convenience entry point used by dispatcher;
// it uses the system pinentry binary.
func Prompt(ctx context.Context, title, prompt, desc, tty string, env map[string]string) (string, error) {
	return ExecRunner{}.Prompt(ctx, title, prompt, desc, tty, env)
}
