// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package pty

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Process is a command attached to the slave side of a PTY. Reads
// return the command's output; writes are its keyboard input.
type Process struct {
	master *os.File
	cmd    *exec.Cmd
}

// Start runs command on a new PTY sized cols by rows. The command
// gets a new session with the PTY as its controlling terminal. The
// command is killed when ctx is done.
func Start(ctx context.Context, command []string, env []string, cols, rows int) (*Process, error) {
	if len(command) == 0 {
		return nil, errors.New("pty: empty command")
	}
	master, slavePath, err := open()
	if err != nil {
		return nil, err
	}
	if err := setWindowSize(master, cols, rows); err != nil {
		master.Close()
		return nil, err
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("pty: opening %s: %w", slavePath, err)
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = env
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0,
	}
	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, fmt.Errorf("pty: starting %s: %w", command[0], err)
	}
	// The child has its own descriptors; the master sees EIO once the
	// last of them closes.
	slave.Close()
	return &Process{master: master, cmd: cmd}, nil
}

// Read returns output. The end of the command's output is reported as
// io.EOF rather than the EIO the master returns.
func (p *Process) Read(buffer []byte) (int, error) {
	n, err := p.master.Read(buffer)
	if errors.Is(err, syscall.EIO) {
		return n, io.EOF
	}
	return n, err
}

// Write sends input to the command.
func (p *Process) Write(data []byte) (int, error) {
	return p.master.Write(data)
}

// Resize changes the terminal size, signalling the command with
// SIGWINCH.
func (p *Process) Resize(cols, rows int) error {
	return setWindowSize(p.master, cols, rows)
}

// Wait waits for the command to exit and releases the PTY.
func (p *Process) Wait() error {
	err := p.cmd.Wait()
	p.master.Close()
	return err
}

// Pid returns the command's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// open allocates a PTY pair, returning the master and the slave's path.
func open() (*os.File, string, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, "", fmt.Errorf("pty: opening /dev/ptmx: %w", err)
	}
	fd := int(master.Fd())
	number, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("pty: TIOCGPTN: %w", err)
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("pty: unlocking slave: %w", err)
	}
	return master, fmt.Sprintf("/dev/pts/%d", number), nil
}

func setWindowSize(master *os.File, cols, rows int) error {
	size := &unix.Winsize{Col: uint16(cols), Row: uint16(rows)}
	if err := unix.IoctlSetWinsize(int(master.Fd()), unix.TIOCSWINSZ, size); err != nil {
		return fmt.Errorf("pty: setting size %dx%d: %w", cols, rows, err)
	}
	return nil
}
