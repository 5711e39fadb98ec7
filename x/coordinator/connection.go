package coordinator

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/proof-orchestrator/x/prover"
)

// connection wraps a worker socket with buffered framed I/O and
// per-operation deadlines. The read deadline doubles as the idle timeout
// for the persistent connection.
type connection struct {
	net.Conn
	id    string
	codec *Codec
	log   zerolog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex
}

func newConnection(netConn net.Conn, id string, codec *Codec, readTimeout, writeTimeout time.Duration, log zerolog.Logger) *connection {
	return &connection{
		Conn:         netConn,
		id:           id,
		codec:        codec,
		log:          log.With().Str("conn_id", id).Logger(),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		reader:       bufio.NewReaderSize(netConn, 16384),
		writer:       bufio.NewWriterSize(netConn, 16384),
	}
}

func (c *connection) readMessage() (*prover.Message, error) {
	if c.readTimeout > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	return c.codec.ReadMessage(c.reader)
}

func (c *connection) writeMessage(msg *prover.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := c.codec.WriteMessage(c.writer, msg); err != nil {
		return err
	}
	return c.writer.Flush()
}
