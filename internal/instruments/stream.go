package instruments

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	serial "github.com/tarm/goserial"
	"go.uber.org/zap"

	"github.com/chrissnell/capnograph/pkg/config"
)

const (
	networkRetryInterval = 5 * time.Second
	serialRetryInterval  = 30 * time.Second
	dialTimeout          = 10 * time.Second
)

// StreamInstrument reads line-oriented readings from a meter attached over
// TCP/IP or a serial port
type StreamInstrument struct {
	base
	wg            *sync.WaitGroup
	rwc           io.ReadWriteCloser
	netConn       net.Conn
	readTimeout   time.Duration
	retryInterval time.Duration
}

// NewStreamInstrument creates an instrument for a "network" or "serial" configuration
func NewStreamInstrument(ctx context.Context, wg *sync.WaitGroup, cfg config.InstrumentData, deliverer Deliverer, logger *zap.SugaredLogger) (*StreamInstrument, error) {
	b, err := newBase(ctx, cfg, deliverer, logger)
	if err != nil {
		return nil, err
	}

	readTimeout, err := config.ParseDuration(cfg.ReadTimeout, config.DefaultReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("instrument [%s]: %w", cfg.Name, err)
	}

	s := &StreamInstrument{
		base:        b,
		wg:          wg,
		readTimeout: readTimeout,
	}

	switch cfg.Type {
	case "network":
		if cfg.Hostname == "" || cfg.Port == "" {
			return nil, fmt.Errorf("instrument [%s] must define hostname and port", cfg.Name)
		}
		s.retryInterval = networkRetryInterval
	case "serial":
		if cfg.SerialDevice == "" {
			return nil, fmt.Errorf("instrument [%s] must define a serial device", cfg.Name)
		}
		if s.config.Baud == 0 {
			s.config.Baud = config.DefaultSerialBaud
		}
		s.retryInterval = serialRetryInterval
	default:
		return nil, fmt.Errorf("instrument [%s] has unsupported stream type %q", cfg.Name, cfg.Type)
	}

	return s, nil
}

// StartInstrument launches the reader goroutine. Connecting happens in the
// background so a missing meter does not hold up startup.
func (s *StreamInstrument) StartInstrument() error {
	s.logger.Infof("starting %s instrument [%s]...", s.config.Type, s.config.Name)

	s.wg.Add(1)
	go s.readReadings()

	return nil
}

// readReadings runs the read loop, reconnecting whenever it fails
func (s *StreamInstrument) readReadings() {
	defer s.wg.Done()
	for {
		if !s.connect() {
			s.logger.Info("cancellation request received. Stopping instrument")
			return
		}

		stop := context.AfterFunc(s.ctx, func() { s.rwc.Close() })
		err := s.parseReadings()
		stop()
		s.rwc.Close()

		if s.ctx.Err() != nil {
			s.logger.Info("cancellation request received. Stopping instrument")
			return
		}
		s.logger.Errorf("read failed: %v", err)
		s.logger.Info("attempting to reconnect...")
	}
}

// parseReadings reads lines until the connection fails or ctx is cancelled
func (s *StreamInstrument) parseReadings() error {
	r := bufio.NewReader(s.rwc)
	count := 0

	for {
		if s.netConn != nil {
			s.netConn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}

		line, err := readLine(r)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && s.ctx.Err() == nil {
				s.logger.Warnf("no reading within %v, repeating last good value and re-sending poll command", s.readTimeout)
				if err := s.repeatLastGood(); err != nil {
					return err
				}
				if err := s.poll(); err != nil {
					return err
				}
				count = 0
				continue
			}
			return fmt.Errorf("error reading from instrument: %w", err)
		}

		if err := s.handleLine(line); err != nil {
			// Deliver only fails once ctx is cancelled
			return err
		}

		count++
		if s.config.PollEvery > 0 && count >= s.config.PollEvery {
			if err := s.poll(); err != nil {
				return err
			}
			count = 0
		}
	}
}

// connect opens the port or socket, retrying until it succeeds, then sends
// the init commands and the first poll. Returns false if ctx was cancelled.
func (s *StreamInstrument) connect() bool {
	for {
		err := s.open()
		if err == nil {
			err = s.initialize()
			if err == nil {
				return true
			}
			s.rwc.Close()
		}

		s.logger.Errorf("could not connect: %v", err)
		s.logger.Errorf("sleeping %v and trying again", s.retryInterval)

		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(s.retryInterval):
		}
	}
}

func (s *StreamInstrument) open() error {
	var err error

	if s.config.Type == "serial" {
		s.logger.Debugf("attempting to open serial port %s at %d baud", s.config.SerialDevice, s.config.Baud)
		s.rwc, err = serial.OpenPort(&serial.Config{Name: s.config.SerialDevice, Baud: s.config.Baud})
		if err != nil {
			return fmt.Errorf("failed to open serial port %s: %w", s.config.SerialDevice, err)
		}
		return nil
	}

	addr := net.JoinHostPort(s.config.Hostname, s.config.Port)
	s.logger.Infof("connecting to %v", addr)
	s.netConn, err = net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("could not connect to %v: %w", addr, err)
	}
	s.rwc = s.netConn
	return nil
}

func (s *StreamInstrument) initialize() error {
	for _, cmd := range s.config.InitCommands {
		if err := s.writeCommand(cmd); err != nil {
			return err
		}
	}
	return s.poll()
}

func (s *StreamInstrument) poll() error {
	if s.config.PollCommand == "" {
		return nil
	}
	return s.writeCommand(s.config.PollCommand)
}

// writeCommand sends a CR-terminated command to the meter
func (s *StreamInstrument) writeCommand(cmd string) error {
	s.logger.Debugf("sending command %q", cmd)
	if _, err := io.WriteString(s.rwc, cmd+"\r"); err != nil {
		return fmt.Errorf("error sending command %q: %w", cmd, err)
	}
	return nil
}
