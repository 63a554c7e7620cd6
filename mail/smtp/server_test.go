package smtp

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

// hang makes the scripted server stop answering.
const hang = "<hang>"

// scriptServer answers client lines with replies in order. The first reply
// is the greeting. After a 354 reply it reads the message up to the lone
// "." line before answering again.
type scriptServer struct {
	replies []string

	mx       sync.Mutex
	received []string
	data     string
	done     chan struct{}
}

func newScriptServer(replies ...string) *scriptServer {
	return &scriptServer{replies: replies, done: make(chan struct{})}
}

func (s *scriptServer) serve(nc net.Conn) {
	defer close(s.done)
	defer nc.Close()

	r := bufio.NewReader(nc)
	w := bufio.NewWriter(nc)

	reply := func(text string) bool {
		if text == hang {
			// hold the stream open until the client gives up
			_, _ = io.Copy(io.Discard, r)
			return false
		}
		_, _ = w.WriteString(text + "\r\n")
		return w.Flush() == nil
	}

	replies := s.replies
	if len(replies) == 0 || !reply(replies[0]) {
		return
	}
	replies = replies[1:]

	for len(replies) > 0 {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\r\n")
		s.mx.Lock()
		s.received = append(s.received, line)
		s.mx.Unlock()

		next := replies[0]
		replies = replies[1:]
		if !reply(next) {
			return
		}

		if line == "DATA" && strings.HasPrefix(next, "354") {
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.mx.Lock()
			s.data = data.String()
			s.mx.Unlock()
			if len(replies) == 0 || !reply(replies[0]) {
				return
			}
			replies = replies[1:]
		}
	}
}

func (s *scriptServer) lines() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.received...)
}

func (s *scriptServer) message() string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.data
}

func (s *scriptServer) wait() {
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}
}

// pipeDialer connects sessions to a scriptServer over net.Pipe.
type pipeDialer struct {
	srv   *scriptServer
	dials int
	err   error
}

func (d *pipeDialer) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	client, server := net.Pipe()
	go d.srv.serve(server)
	return client, nil
}

func testConfig() Config {
	return Config{
		Server:         "mail.test",
		Port:           465,
		Username:       "user@mail.test",
		Password:       "secret",
		ConnectTimeout: 5 * time.Second,
		CommandTimeout: 5 * time.Second,
	}
}

// loginReplies is a greeting plus successful HELO and AUTH LOGIN.
func loginReplies() []string {
	return []string{
		"220 mail.test ESMTP ready",
		"250 mail.test",
		"334 VXNlcm5hbWU6",
		"334 UGFzc3dvcmQ6",
		"235 2.7.0 Authentication successful",
	}
}

func script(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
