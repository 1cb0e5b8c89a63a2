// Package renderertest provides an in-process renderer that speaks the wire
// protocol, for tests and local runs.
package renderertest

import (
	"errors"
	"net"
	"sync"
	"time"
)

// Reply is what the server writes back for one request. Each frame is a
// separate write; Gap is slept between frames so the client sees them as
// distinct reads. No frames means the server stays silent.
type Reply struct {
	Frames [][]byte
	Gap    time.Duration
}

func Text(s string) Reply { return Reply{Frames: [][]byte{[]byte(s)}} }

// Silent never answers.
func Silent() Reply { return Reply{} }

type Handler interface {
	Handle(tag string) Reply
}

type HandlerFunc func(tag string) Reply

func (f HandlerFunc) Handle(tag string) Reply { return f(tag) }

type Server struct {
	ln      net.Listener
	handler Handler

	mu       sync.Mutex
	requests []string
	accepted int
	conns    map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves until
// Close.
func Start(addr string, h Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, handler: h, conns: map[net.Conn]struct{}{}}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Requests returns every tag received so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Accepted reports how many connections were accepted.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// DropConnections closes every live connection but keeps listening.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) Close() error {
	err := s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.mu.Lock()
		s.accepted++
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(c)
		}()
	}
}

func (s *Server) serve(c net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()
	buf := make([]byte, 1024)
	for {
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		tag := string(buf[:n])
		s.mu.Lock()
		s.requests = append(s.requests, tag)
		s.mu.Unlock()

		r := s.handler.Handle(tag)
		for i, f := range r.Frames {
			if i > 0 && r.Gap > 0 {
				time.Sleep(r.Gap)
			}
			if _, err := c.Write(f); err != nil {
				return
			}
		}
	}
}
