// Package sshd runs the SSH login listener.
//
// A client authenticating with a public key registered in the directory gets
// a one-time login URL back on its session channel. Nothing else is served:
// there is no shell and no forwarding.
package sshd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/okupy/okupy/internal/auth"
	"github.com/okupy/okupy/internal/identity"
)

const (
	extIdentity = "okupy-identity"
	extUsername = "okupy-username"

	handshakeTimeout = 30 * time.Second
)

var (
	// ErrUnknownKey is returned to the SSH library for keys nobody owns.
	ErrUnknownKey = errors.New("public key not registered")
	// ErrDisabled is returned after the handshake for disabled accounts.
	ErrDisabled = errors.New("account disabled")
)

// Server is the SSH login listener.
type Server struct {
	resolver *auth.Resolver
	tokens   *auth.TokenIssuer
	loginURL string
	config   *ssh.ServerConfig

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	active   map[net.Conn]struct{}
	conns    sync.WaitGroup
}

// New returns a Server answering with links below baseURL.
func New(resolver *auth.Resolver, tokens *auth.TokenIssuer, baseURL string, hostKey ssh.Signer) *Server {
	s := &Server{
		resolver: resolver,
		tokens:   tokens,
		loginURL: strings.TrimRight(baseURL, "/") + "/login/ssh/",
		active:   make(map[net.Conn]struct{}),
	}

	s.config = &ssh.ServerConfig{
		PublicKeyCallback: s.authenticate,
		ServerVersion:     "SSH-2.0-okupy",
	}
	s.config.AddHostKey(hostKey)

	return s
}

// authenticate looks the offered key up. The SSH library calls it for key
// queries and before the signature is checked, so nothing is recorded here:
// the identity travels to the connection in the permission extensions and is
// admitted once the handshake succeeded.
func (s *Server) authenticate(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
	id, err := s.resolver.Lookup(&auth.Credentials{SSHKey: key})
	if err != nil {
		log.Error().Err(err).Str("remote", meta.RemoteAddr().String()).Msg("ssh key lookup failed")

		return nil, err
	}

	if id == nil {
		log.Info().
			Str("remote", meta.RemoteAddr().String()).
			Str("fingerprint", ssh.FingerprintSHA256(key)).
			Msg("ssh key not registered")

		return nil, ErrUnknownKey
	}

	encoded, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("failed to encode identity: %w", err)
	}

	return &ssh.Permissions{
		Extensions: map[string]string{
			extIdentity: string(encoded),
			extUsername: id.Username,
		},
	}, nil
}

// ListenAndServe listens on addr and serves until Close.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	return s.Serve(l)
}

// Serve accepts connections on l until Close. It returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()

		return nil
	}
	s.listener = l
	s.mu.Unlock()

	log.Info().Str("addr", l.Addr().String()).Msg("ssh login listener started")

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("failed to accept ssh connection: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()

			return nil
		}

		go func() {
			defer s.untrack(conn)

			s.handle(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.active[conn] = struct{}{}
	s.conns.Add(1)

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()

	s.conns.Done()
}

// Close stops accepting connections, drops open ones and waits for their
// goroutines to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	l := s.listener

	for conn := range s.active {
		_ = conn.Close()
	}
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}

	s.conns.Wait()

	return err
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	sconn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("ssh handshake failed")

		return
	}
	defer sconn.Close()

	_ = conn.SetDeadline(time.Time{})

	go ssh.DiscardRequests(reqs)

	link, err := s.link(sconn.Permissions)
	if err != nil {
		log.Warn().Err(err).Str("remote", sconn.RemoteAddr().String()).Msg("no ssh login link issued")

		return
	}

	log.Info().
		Str("username", sconn.Permissions.Extensions[extUsername]).
		Str("remote", sconn.RemoteAddr().String()).
		Msg("issued ssh login link")

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are served")

			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			log.Debug().Err(err).Msg("failed to accept ssh channel")

			continue
		}

		go serveSession(channel, requests, link)
	}
}

// link admits the identity proven by the handshake and returns its login URL.
func (s *Server) link(perms *ssh.Permissions) (string, error) {
	if perms == nil {
		return "", ErrUnknownKey
	}

	var id identity.Identity
	if err := json.Unmarshal([]byte(perms.Extensions[extIdentity]), &id); err != nil {
		return "", fmt.Errorf("bad identity in ssh permissions: %w", err)
	}

	res, err := s.resolver.Admit(&id)
	if err != nil {
		return "", err
	}

	if res == nil {
		return "", ErrDisabled
	}

	token, err := s.tokens.Issue(res)
	if err != nil {
		return "", err
	}

	return s.loginURL + token, nil
}

// serveSession writes the link once a shell or command is requested and
// closes the channel.
func serveSession(channel ssh.Channel, requests <-chan *ssh.Request, link string) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "shell", "exec":
			_ = req.Reply(true, nil)

			_, _ = fmt.Fprintf(channel, "Open this link to log in, it works once:\r\n\r\n  %s\r\n\r\n", link)
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))

			return
		case "pty-req", "env":
			_ = req.Reply(true, nil)
		default:
			_ = req.Reply(false, nil)
		}
	}
}
