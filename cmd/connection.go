// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/mpqtt/internal/config"
	"github.com/Thermoquad/mpqtt/internal/poller"
)

// PasswordEnv holds the WebSocket password when --username is set.
const PasswordEnv = "MPQTT_PASSWORD"

// Connection provides a common interface for reading/writing bytes from the
// inverter over serial, a raw character device or WebSocket
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrReadTimeout is returned when the inverter does not answer within the
// configured read timeout
var ErrReadTimeout = errors.New("read timed out")

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

// Read maps the port's (0, nil) timeout result onto ErrReadTimeout
func (s *SerialConnection) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if n == 0 && err == nil {
		return 0, ErrReadTimeout
	}
	return n, err
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// RawConnection is a character device opened read/write, such as the hidraw
// node of a USB-HID inverter
type RawConnection struct {
	file    *os.File
	timeout time.Duration
}

func (r *RawConnection) Read(p []byte) (int, error) {
	if r.timeout > 0 {
		// Not every device supports deadlines; those block until data or Close
		if err := r.file.SetReadDeadline(time.Now().Add(r.timeout)); err != nil && !errors.Is(err, os.ErrNoDeadline) {
			return 0, err
		}
	}
	n, err := r.file.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, ErrReadTimeout
	}
	return n, err
}

func (r *RawConnection) Write(p []byte) (int, error) {
	return r.file.Write(p)
}

func (r *RawConnection) Close() error {
	return r.file.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		// The bridge forwards UART bytes as binary messages; anything else is chatter
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int, readTimeout time.Duration) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout on %s: %w", portName, err)
		}
	}

	return &SerialConnection{port: port}, nil
}

// OpenRawConnection opens a character device for reading and writing
func OpenRawConnection(path string, readTimeout time.Duration) (Connection, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	return &RawConnection{file: f, timeout: readTimeout}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// NewDialer returns a dialer for the configured transport and a description
// for log output. The WebSocket password is resolved once, here.
func NewDialer(cfg config.InverterConfig) (poller.Dialer, string, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
			return OpenWebSocketConnection(ctx, cfg.URL, cfg.Username, password, cfg.NoSSLVerify)
		}
		return dial, fmt.Sprintf("WebSocket: %s", cfg.URL), nil

	case config.TransportSerial:
		dial := func(context.Context) (io.ReadWriteCloser, error) {
			return OpenSerialConnection(cfg.Path, cfg.Baud, cfg.ReadTimeout)
		}
		return dial, fmt.Sprintf("Serial: %s @ %d baud", cfg.Path, cfg.Baud), nil

	case config.TransportRaw:
		dial := func(context.Context) (io.ReadWriteCloser, error) {
			return OpenRawConnection(cfg.Path, cfg.ReadTimeout)
		}
		return dial, fmt.Sprintf("Device: %s", cfg.Path), nil
	}

	return nil, "", fmt.Errorf("unknown transport %q", cfg.Transport)
}
