package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/compose-network/proof-orchestrator/x/inputs"
	"github.com/compose-network/proof-orchestrator/x/proofstore"
	"github.com/compose-network/proof-orchestrator/x/prover"
	"github.com/compose-network/proof-orchestrator/x/scheduler"
)

// Coordinator terminates worker connections, translates batch requests
// into scheduler calls, and persists submitted proofs. It never talks to
// the settlement layer directly; the submission driver owns that side.
type Coordinator struct {
	cfg      Config
	sched    *scheduler.Scheduler
	store    proofstore.Store
	inputs   inputs.Provider
	required []prover.Type
	codec    *Codec
	log      zerolog.Logger
	metrics  *Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*connection
	quit     chan struct{}
	wg       sync.WaitGroup
	started  bool
	connSem  chan struct{}
}

// New wires a Coordinator; required is the deployment's set of prover
// types a batch needs before it can be verified.
func New(
	cfg Config,
	sched *scheduler.Scheduler,
	store proofstore.Store,
	provider inputs.Provider,
	required []prover.Type,
	log zerolog.Logger,
) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(required) == 0 {
		return nil, fmt.Errorf("at least one required prover type is needed")
	}

	return &Coordinator{
		cfg:      cfg,
		sched:    sched,
		store:    store,
		inputs:   provider,
		required: required,
		codec:    NewCodec(cfg.MaxFrameSize),
		log:      log.With().Str("component", "coordinator").Logger(),
		metrics:  NewMetrics(),
		conns:    make(map[string]*connection),
		quit:     make(chan struct{}),
		connSem:  make(chan struct{}, cfg.MaxConnections),
	}, nil
}

// Start binds the listener and begins accepting worker connections.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.cfg.ListenAddr, err)
	}
	c.listener = ln
	c.started = true

	c.log.Info().
		Str("listen_addr", ln.Addr().String()).
		Int("max_connections", c.cfg.MaxConnections).
		Msg("Coordinator listening for workers")

	c.wg.Add(1)
	go c.acceptLoop(ctx, ln)
	return nil
}

// Addr returns the bound listener address, for tests using ":0".
func (c *Coordinator) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Stop closes the listener and waits for in-flight connections.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	close(c.quit)
	ln := c.listener
	c.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}

	c.mu.Lock()
	for _, conn := range c.conns {
		_ = conn.Close()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		c.log.Info().Msg("Coordinator stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) acceptLoop(ctx context.Context, ln net.Listener) {
	defer c.wg.Done()

	for {
		netConn, err := ln.Accept()
		if err != nil {
			select {
			case <-c.quit:
				return
			default:
			}
			c.log.Error().Err(err).Msg("Failed to accept connection")
			continue
		}

		select {
		case c.connSem <- struct{}{}:
		default:
			c.log.Warn().
				Str("remote_addr", netConn.RemoteAddr().String()).
				Msg("Connection limit reached, rejecting worker")
			c.metrics.ConnectionsTotal.WithLabelValues("rejected").Inc()
			_ = netConn.Close()
			continue
		}

		conn := newConnection(
			netConn,
			uuid.NewString(),
			c.codec,
			c.cfg.ReadTimeout,
			c.cfg.WriteTimeout,
			c.log,
		)
		c.metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()
		c.metrics.ConnectionsActive.Inc()

		c.mu.Lock()
		c.conns[conn.id] = conn
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() {
				c.mu.Lock()
				delete(c.conns, conn.id)
				c.mu.Unlock()
				<-c.connSem
				c.metrics.ConnectionsActive.Dec()
			}()
			c.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection serves the request/response loop for one worker until
// it disconnects, idles out, or sends something unreadable.
func (c *Coordinator) handleConnection(ctx context.Context, conn *connection) {
	defer conn.Close()

	conn.log.Debug().
		Str("remote_addr", conn.RemoteAddr().String()).
		Msg("Worker connected")

	for {
		select {
		case <-c.quit:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := conn.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				conn.log.Debug().Msg("Worker disconnected")
				return
			}
			var tooLarge *ErrFrameTooLarge
			if errors.As(err, &tooLarge) {
				conn.log.Warn().Err(err).Msg("Oversized frame, closing connection")
				_ = conn.writeMessage(prover.NewError(err.Error()))
				return
			}
			conn.log.Debug().Err(err).Msg("Failed to read message, closing connection")
			return
		}

		resp := c.dispatch(ctx, conn.log, msg)
		if resp == nil {
			continue
		}
		if err := conn.writeMessage(resp); err != nil {
			conn.log.Warn().Err(err).Msg("Failed to write response")
			return
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, log zerolog.Logger, msg *prover.Message) *prover.Message {
	switch msg.Type {
	case prover.KindBatchRequest:
		return c.handleBatchRequest(ctx, log, msg.BatchRequest)
	case prover.KindProofSubmit:
		return c.handleProofSubmit(ctx, log, msg.ProofSubmit)
	default:
		log.Warn().Str("type", string(msg.Type)).Msg("Unexpected message type")
		return prover.NewError(fmt.Sprintf("unexpected message type %q", msg.Type))
	}
}

// handleBatchRequest answers "what should I work on" for one prover
// type. Types outside the deployment's required set get a permanent
// rejection so the worker can shut down instead of polling forever.
func (c *Coordinator) handleBatchRequest(ctx context.Context, log zerolog.Logger, req *prover.BatchRequest) *prover.Message {
	t := req.ProverType
	log.Info().Stringer("prover", t).Msg("BatchRequest received")

	if !prover.Contains(c.required, t) {
		log.Info().Stringer("prover", t).Msg("Prover type not needed, rejecting worker")
		c.metrics.BatchRequests.WithLabelValues(t.String(), "not_needed").Inc()
		return &prover.Message{Type: prover.KindProverTypeUnused}
	}

	batch, ok, err := c.sched.NextBatch(ctx, t)
	if err != nil {
		log.Error().Err(err).Stringer("prover", t).Msg("Failed to pick next batch")
		c.metrics.ErrorsTotal.WithLabelValues("next_batch").Inc()
		return prover.NewError("internal error")
	}
	if !ok {
		return c.noWorkResponse(log, t, req.CommitHash)
	}

	input, found, err := c.inputs.ProvingInput(ctx, batch)
	if err != nil {
		log.Error().Err(err).Uint64("batch", batch).Msg("Failed to fetch proving input")
		c.metrics.ErrorsTotal.WithLabelValues("proving_input").Inc()
		c.sched.Release(batch, t)
		return prover.NewError("internal error")
	}
	if !found {
		// The scan ran past the inputs the sequencer has produced;
		// nothing left to assign.
		c.sched.Release(batch, t)
		return c.noWorkResponse(log, t, req.CommitHash)
	}

	log.Info().
		Uint64("batch", batch).
		Stringer("prover", t).
		Int("input_bytes", len(input)).
		Msg("Batch assigned")
	c.metrics.BatchRequests.WithLabelValues(t.String(), "assigned").Inc()
	c.metrics.BatchesAssigned.WithLabelValues(t.String()).Inc()

	return prover.NewBatchAssigned(batch, input)
}

// noWorkResponse distinguishes a stale worker build from a genuinely
// empty queue so the worker knows whether to update or retry later.
func (c *Coordinator) noWorkResponse(log zerolog.Logger, t prover.Type, commitHash string) *prover.Message {
	if c.cfg.CommitHash != "" && commitHash != c.cfg.CommitHash {
		log.Info().
			Stringer("prover", t).
			Str("worker_commit", commitHash).
			Msg("Worker build mismatch")
		c.metrics.BatchRequests.WithLabelValues(t.String(), "version_mismatch").Inc()
		return &prover.Message{Type: prover.KindVersionMismatch}
	}
	c.metrics.BatchRequests.WithLabelValues(t.String(), "no_work").Inc()
	return &prover.Message{Type: prover.KindNoWork}
}

// handleProofSubmit persists a finished proof. The store write is
// idempotent, so a late submission from a reassigned worker is
// acknowledged and discarded without error.
func (c *Coordinator) handleProofSubmit(ctx context.Context, log zerolog.Logger, sub *prover.ProofSubmit) *prover.Message {
	t := sub.ProverType
	log.Info().
		Uint64("batch", sub.BatchNumber).
		Stringer("prover", t).
		Int("proof_bytes", len(sub.Proof)).
		Msg("ProofSubmit received")

	_, exists, err := c.store.Get(ctx, sub.BatchNumber, t)
	if err != nil {
		log.Error().Err(err).Msg("Failed to check existing proof record")
		c.metrics.ErrorsTotal.WithLabelValues("proof_lookup").Inc()
		return prover.NewError("internal error")
	}
	if exists {
		log.Info().
			Uint64("batch", sub.BatchNumber).
			Stringer("prover", t).
			Msg("Proof already stored, discarding duplicate submission")
		c.metrics.DuplicateProofs.WithLabelValues(t.String()).Inc()
	} else {
		if err := c.store.Put(ctx, sub.BatchNumber, t, sub.Proof); err != nil {
			log.Error().Err(err).Msg("Failed to store proof")
			c.metrics.ErrorsTotal.WithLabelValues("proof_store").Inc()
			return prover.NewError("internal error")
		}
		c.metrics.ProofsReceived.WithLabelValues(t.String()).Inc()
		c.metrics.ProofSizeBytes.Observe(float64(len(sub.Proof)))
	}

	c.sched.Release(sub.BatchNumber, t)
	return prover.NewAck(sub.BatchNumber)
}
