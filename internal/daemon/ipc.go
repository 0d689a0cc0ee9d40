// Copyright 2024 homefs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"homefs/internal/config"
	"homefs/internal/vfs"
)

// Request types
const (
	RequestStatus       = "status"
	RequestStop         = "stop"
	RequestMaintain     = "maintain"      // Run a maintenance pass now
	RequestReloadConfig = "reload_config" // Reload settings from disk
)

// Request represents an IPC request
type Request struct {
	Type string `json:"type"`
}

// Status describes the running daemon.
type Status struct {
	DataDirectory string        `json:"data_directory"`
	Interval      time.Duration `json:"interval"`
	Runs          int           `json:"runs"`
	LastRun       time.Time     `json:"last_run,omitzero"`
	LastError     string        `json:"last_error,omitempty"`
}

// Response represents an IPC response
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Error   string                 `json:"error,omitempty"`
	PID     int                    `json:"pid,omitempty"`
	Status  *Status                `json:"status,omitempty"`
	Report  *vfs.MaintenanceReport `json:"report,omitempty"` // last or requested maintenance pass
}

// Handler answers one request.
type Handler func(ctx context.Context, req *Request) *Response

// Server is the IPC server
type Server struct {
	path     string
	listener net.Listener
	handler  Handler
	wg       sync.WaitGroup // connections in flight
}

// NewServer creates an IPC server listening on path.
func NewServer(path string, handler Handler) *Server {
	return &Server{path: path, handler: handler}
}

// Start listens on the socket and serves requests until ctx is done or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to create socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.path, 0o600); err != nil {
		log.Warnf("[IPC] failed to restrict socket permissions: %v", err)
	}

	go s.accept(ctx)
	return nil
}

// Stop closes the socket and waits for requests in flight.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
		s.wg.Wait()
		os.Remove(s.path)
	}
}

func (s *Server) accept(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				log.Errorf("[IPC] accept failed: %v", err)
			}
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		log.Debugf("[IPC] bad request: %v", err)
		return
	}

	resp := s.handler(ctx, &req)
	if resp == nil {
		resp = &Response{Success: false, Error: "no response"}
	}
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		log.Debugf("[IPC] failed to send response: %v", err)
	}
}

// Client is the IPC client
type Client struct {
	conn net.Conn
}

// Connect connects to the daemon
func Connect() (*Client, error) {
	return ConnectTo(config.SocketPath())
}

// ConnectTo connects to a daemon listening on path.
func ConnectTo(path string) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send sends a request and returns the response
func (c *Client) Send(req *Request) (*Response, error) {
	if err := json.NewEncoder(c.conn).Encode(req); err != nil {
		return nil, err
	}

	var resp Response
	if err := json.NewDecoder(c.conn).Decode(&resp); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("daemon closed connection")
		}
		return nil, err
	}
	return &resp, nil
}

// Status sends a status request
func (c *Client) Status() (*Response, error) {
	return c.Send(&Request{Type: RequestStatus})
}

// Stop sends a stop request
func (c *Client) Stop() (*Response, error) {
	return c.Send(&Request{Type: RequestStop})
}

// Maintain runs a maintenance pass in the daemon and returns its report.
func (c *Client) Maintain() (*vfs.MaintenanceReport, error) {
	resp, err := c.Send(&Request{Type: RequestMaintain})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("maintenance failed: %s", resp.Error)
	}
	return resp.Report, nil
}

// ReloadConfig requests the daemon to reload its configuration from disk
func (c *Client) ReloadConfig() error {
	resp, err := c.Send(&Request{Type: RequestReloadConfig})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("reload config failed: %s", resp.Error)
	}
	return nil
}

// IsDaemonRunning checks if the daemon is running
func IsDaemonRunning() bool {
	client, err := Connect()
	if err != nil {
		return false
	}
	client.Close()
	return true
}
