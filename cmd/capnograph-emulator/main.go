// capnograph-emulator serves flow or CO2 readings over TCP for testing the
// capnograph without instruments attached. Readings come from a recorded
// session CSV or, without one, from a synthetic breathing waveform.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/chrissnell/capnograph/internal/instruments"
	"github.com/chrissnell/capnograph/internal/log"
)

func main() {
	var (
		port     = flag.String("port", "3607", "TCP port to listen on")
		interval = flag.Duration("interval", 50*time.Millisecond, "Interval between readings")
		channel  = flag.String("channel", "flow", "Which meter to emulate: flow or co2")
		file     = flag.String("file", "", "Recorded session CSV to replay")
		column   = flag.String("column", "", "CSV column to replay (default \"Flow SLPM\" or \"CO2 ppm\")")
		debug    = flag.Bool("debug", false, "Log commands received from the client")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	values, err := loadReadings(*channel, *file, *column)
	if err != nil {
		log.Fatalf("could not load readings: %v", err)
	}

	log.Infof("Capnograph %s meter emulator", *channel)
	log.Infof("Listening on port %s, sending %d readings every %v", *port, len(values), *interval)

	listener, err := net.Listen("tcp", ":"+*port)
	if err != nil {
		log.Fatal("Failed to listen:", err)
	}
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Errorf("Failed to accept connection: %v", err)
			continue
		}

		log.Infof("Client connected from %s", conn.RemoteAddr())
		go handleConnection(conn, values, *interval)
	}
}

func loadReadings(channel, file, column string) ([]float64, error) {
	if column == "" {
		column = "Flow SLPM"
		if channel == "co2" {
			column = "CO2 ppm"
		}
	}

	if file == "" {
		return synthesize(channel), nil
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values, err := instruments.ReadColumn(f, column)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no readings in column %q of %s", column, file)
	}
	return values, nil
}

// synthesize generates one 4 second breath sampled at 20 Hz: flow during
// the first half, exhaled CO2 rising through the second half
func synthesize(channel string) []float64 {
	const samples = 80
	values := make([]float64, samples)
	for i := range values {
		phase := 2 * math.Pi * float64(i) / samples
		switch channel {
		case "co2":
			values[i] = math.Max(400, 45000*-math.Sin(phase))
		default:
			values[i] = math.Max(0, 40*math.Sin(phase))
		}
	}
	return values
}

func handleConnection(conn net.Conn, values []float64, interval time.Duration) {
	defer conn.Close()

	// Commands such as the poll request are acknowledged only by logging
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Split(scanCR)
		for scanner.Scan() {
			log.Debugf("received command %q", scanner.Text())
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(values) {
		<-ticker.C
		if _, err := fmt.Fprintf(conn, "%+08.3f\r\n", values[i]); err != nil {
			log.Infof("Client %s disconnected: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// scanCR splits on CR or LF
func scanCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' || b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
