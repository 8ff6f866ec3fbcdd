package session

import (
	"errors"
	"time"
)

// Transport 半双工串行链路。会话只调用 Write 与 ReadExact，由单个 worker 串行访问。
type Transport interface {
	Write(p []byte) error
	// ReadExact 在 timeout 内读满 n 字节，否则返回错误
	ReadExact(n int, timeout time.Duration) ([]byte, error)
	Close() error
}

// flusher 可选：丢弃输入缓冲区中的残留字节
type flusher interface {
	Flush() error
}

var (
	// ErrClosed 会话已关闭或正在关闭
	ErrClosed = errors.New("session: closed")
	// ErrSubmitTimeout 调用方等待超时；worker 仍会完成正在进行的交换
	ErrSubmitTimeout = errors.New("session: submit timeout")
	// ErrTransport 读写串口失败
	ErrTransport = errors.New("session: transport failure")
	// ErrAlreadyRunning Run 只能调用一次
	ErrAlreadyRunning = errors.New("session: already running")
)
