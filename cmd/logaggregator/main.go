// Command logaggregator centralizes log output from a set of ringd nodes.
// It is the Go counterpart of the original system's log_aggregator.py: each
// node's logger (internal/logging) mirrors its records here over a plain
// TCP stream, and the aggregator appends everything it receives to a single
// rotated output file.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	host := flag.String("host", "0.0.0.0", "bind address")
	port := flag.Int("port", 9020, "bind port")
	output := flag.String("output", "logs/aggregated.log", "output log file")
	flag.Parse()

	out := &lumberjack.Logger{
		Filename:   *output,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     28,
	}
	defer out.Close()

	addr := net.JoinHostPort(*host, itoa(*port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logaggregator: failed to listen on %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer lis.Close()

	fmt.Fprintf(os.Stderr, "logaggregator: listening on %s, writing to %s\n", addr, *output)

	var mut sync.Mutex

	for {
		conn, err := lis.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "logaggregator: accept error: %v\n", err)
			continue
		}
		go handleConn(conn, out, &mut)
	}
}

// handleConn copies one node's log stream into out. Writes to out are
// serialized since lumberjack.Logger is not safe for unsynchronized
// concurrent writers.
func handleConn(conn net.Conn, out io.Writer, mut *sync.Mutex) {
	defer conn.Close()

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			mut.Lock()
			out.Write(buf[:n])
			mut.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
