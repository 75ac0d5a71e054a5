package prex

import (
	"bytes"
	"math/rand"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Session holds the state shared by every printer language: the
// transport, the current volume and working directory, delimiter token
// bookkeeping and the connection trouble policy.
//
// Paths are resolved client-side. Printers have no notion of a working
// directory, so every command carries an absolute, volume-qualified
// path built from the session state.
type Session struct {
	transport Transport

	// Configuration
	config *Config

	// Logger
	log *logrus.Logger

	// Path state
	vol string
	cwd string

	// Delimiter token state
	rng       *rand.Rand
	lastToken string

	// Most recent device-reported error, if any
	lastError *Error

	// Raw outgoing traffic capture
	audit *os.File
}

// Config holds session configuration.
type Config struct {
	// Timeout bounds a single reply read. Long-running commands scale
	// it per call.
	Timeout time.Duration

	// Volume is the initial filesystem volume, e.g. "0:".
	Volume string

	// ChunkSize is the number of candidates packed into one job
	// during credential attacks.
	ChunkSize int

	// Status requests a status readback with every PJL command.
	Status bool

	// Exceptions propagates transport failures to the caller instead
	// of reconnecting quietly.
	Exceptions bool

	// Fuzz loosens client-side existence checks so path fuzzing can
	// probe locations the device claims are absent.
	Fuzz bool

	// Feedback overrides PostScript channel detection.
	Feedback Feedback

	// LogFile captures all outgoing traffic for replay.
	LogFile string
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timeout:   10 * time.Second,
		Volume:    "0:",
		ChunkSize: 500,
		Feedback:  FeedbackAuto,
	}
}

// Feedback classifies the PostScript return channel of a device.
type Feedback int

const (
	// FeedbackAuto probes the device on connect.
	FeedbackAuto Feedback = iota

	// FeedbackNormal means the interpreter echoes output as-is.
	FeedbackNormal

	// FeedbackCrippled means output only arrives with the stdout
	// redefinition hack applied to every command.
	FeedbackCrippled

	// FeedbackNone means the device never talks back.
	FeedbackNone
)

func (f Feedback) String() string {
	switch f {
	case FeedbackAuto:
		return "auto"
	case FeedbackNormal:
		return "normal"
	case FeedbackCrippled:
		return "crippled"
	case FeedbackNone:
		return "none"
	default:
		return "unknown"
	}
}

// Option configures a Session.
type Option func(*Session)

// WithConfig sets the session configuration.
func WithConfig(config *Config) Option {
	return func(s *Session) {
		s.config = config
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithTimeout sets the base reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.config.Timeout = d
	}
}

// WithVolume sets the initial filesystem volume.
func WithVolume(vol string) Option {
	return func(s *Session) {
		s.config.Volume = vol
	}
}

// WithStatus enables per-command status readback.
func WithStatus() Option {
	return func(s *Session) {
		s.config.Status = true
	}
}

// WithExceptions propagates transport failures instead of reconnecting.
func WithExceptions() Option {
	return func(s *Session) {
		s.config.Exceptions = true
	}
}

// WithFuzz loosens client-side existence checks.
func WithFuzz() Option {
	return func(s *Session) {
		s.config.Fuzz = true
	}
}

// WithChunkSize sets the credential attack chunk size.
func WithChunkSize(n int) Option {
	return func(s *Session) {
		s.config.ChunkSize = n
	}
}

// WithFeedback overrides PostScript channel detection.
func WithFeedback(f Feedback) Option {
	return func(s *Session) {
		s.config.Feedback = f
	}
}

// WithLogFile captures all outgoing traffic to the named file.
func WithLogFile(name string) Option {
	return func(s *Session) {
		s.config.LogFile = name
	}
}

// NewSession creates a session on top of an open transport.
func NewSession(transport Transport, opts ...Option) (*Session, error) {
	s := &Session{
		transport: transport,
		config:    DefaultConfig(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logrus.New()
	}
	s.vol = s.config.Volume
	if s.vol != "" && !strings.HasSuffix(s.vol, SEP) {
		s.vol += SEP
	}

	if s.config.LogFile != "" {
		f, err := os.OpenFile(s.config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, WrapError(ErrTransport, "open log file", err)
		}
		s.audit = f
	}

	return s, nil
}

// Close releases the traffic capture and the transport.
func (s *Session) Close() error {
	if s.audit != nil {
		s.audit.Close()
		s.audit = nil
	}
	return s.transport.Close()
}

// Transport returns the underlying transport.
func (s *Session) Transport() Transport {
	return s.transport
}

// Logger returns the session logger.
func (s *Session) Logger() *logrus.Logger {
	return s.log
}

// Timeout returns the base reply timeout.
func (s *Session) Timeout() time.Duration {
	return s.config.Timeout
}

// SetTimeout adjusts the base reply timeout.
func (s *Session) SetTimeout(d time.Duration) {
	s.config.Timeout = d
}

// LastError returns the most recent device-reported error, or nil.
func (s *Session) LastError() *Error {
	return s.lastError
}

// CWD returns the current working directory, relative to the volume.
func (s *Session) CWD() string {
	return s.cwd
}

// ChVol switches the filesystem volume, e.g. "1:".
func (s *Session) ChVol(vol string) {
	if vol != "" && !strings.HasSuffix(vol, SEP) {
		vol += SEP
	}
	s.vol = vol
	s.cwd = ""
}

// ChDir changes the working directory. Absolute paths replace it,
// relative paths append; ".." components resolve client-side.
func (s *Session) ChDir(dir string) {
	p := dir
	if !strings.HasPrefix(p, SEP) {
		p = SEP + s.cwd + SEP + p
	}
	s.cwd = strings.Trim(path.Clean(p), SEP)
	if s.cwd == "." {
		s.cwd = ""
	}
}

// rpath resolves a user path to an absolute, volume-qualified remote
// path. Paths already carrying a volume pass through untouched.
func (s *Session) rpath(p string) string {
	// fuzz mode sends paths raw, malformed shapes included
	if s.config.Fuzz {
		return p
	}
	if strings.Contains(p, ":") {
		return p
	}
	if !strings.HasPrefix(p, SEP) {
		p = SEP + s.cwd + SEP + p
	}
	clean := path.Clean(p)
	if clean == "." || clean == SEP {
		clean = ""
	}
	return s.vol + strings.TrimPrefix(clean, SEP)
}

// mintToken returns a fresh delimiter token for a reply boundary. The
// token must differ from the previous one, or a stale reply still
// sitting in the socket could satisfy the read early, and must not
// occur inside the payload, or the device would echo it ahead of time.
func (s *Session) mintToken(payload []byte) string {
	for {
		token := delimiterWord + strconv.Itoa(s.rng.Intn(65536))
		if token != s.lastToken && !bytes.Contains(payload, []byte(token)) {
			s.lastToken = token
			return token
		}
	}
}

// mintNumericToken returns a fresh negative numeric token for PCL,
// which can only echo numbers. Payload data bytes echo as values in
// [0,255], so a negative token cannot collide with data.
func (s *Session) mintNumericToken(payload []byte) string {
	for {
		token := "-" + strconv.Itoa(pclTokenMin+s.rng.Intn(pclTokenMax-pclTokenMin+1))
		if token != s.lastToken && !bytes.Contains(payload, []byte(token)) {
			s.lastToken = token
			return token
		}
	}
}

// capture appends the unframed command to the traffic capture. Capture
// failures never fail the command.
func (s *Session) capture(payload []byte) {
	if s.audit == nil {
		return
	}
	s.audit.Write(payload)
	s.audit.Write([]byte("\n"))
}

func (s *Session) send(job []byte) error {
	return s.transport.Send(job)
}

// recover applies the connection trouble policy: reconnect quietly and
// report an empty response, or propagate when exceptions are enabled.
// Commands that crash or wedge the device land here, and treating that
// as fatal would make half the stress operations unusable.
func (s *Session) recover(err error) ([]byte, error) {
	if s.config.Exceptions {
		return nil, err
	}
	s.log.WithError(err).Debug("connection trouble, reconnecting")
	if rerr := s.transport.Reopen(); rerr != nil {
		s.log.WithError(rerr).Debug("reconnect failed")
	}
	return nil, nil
}

// effTimeout scales the base timeout for long-running commands.
func (s *Session) effTimeout(factor float64) time.Duration {
	if factor <= 0 {
		factor = 1
	}
	return time.Duration(float64(s.config.Timeout) * factor)
}

// deviceError records and logs an error the device reported in-band.
func (s *Session) deviceError(msg string) {
	s.lastError = NewError(ErrDevice, msg)
	s.log.Error(msg)
}

// CmdOptions tune a single command round trip.
type CmdOptions struct {
	// NoWait sends the command without reading a reply.
	NoWait bool

	// KeepEcho leaves the echoed command line in the response.
	KeepEcho bool

	// Binary skips text cleanup on the response.
	Binary bool

	// TimeoutFactor scales the session timeout; zero means 1.
	TimeoutFactor float64
}
