//go:build !unix

package fio

import "os/exec"

func configureProcess(cmd *exec.Cmd) {}
