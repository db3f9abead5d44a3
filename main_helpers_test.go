package main

import (
	"bytes"
	"testing"
)

// cliOutput 收集一次命令执行的标准输出与错误输出。
type cliOutput struct {
	out *bytes.Buffer
	err *bytes.Buffer
}

// captureOutput 在测试期间把 stdOut/stdErr 换成内存缓冲，结束后恢复。
func captureOutput(t *testing.T) cliOutput {
	t.Helper()

	captured := cliOutput{out: &bytes.Buffer{}, err: &bytes.Buffer{}}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = captured.out, captured.err
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return captured
}
