// Package ingest owns the receive loop and the decode worker that
// together turn raw UDP payloads into aggregate table updates.
package ingest

import (
	"context"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/metalgrid/sflowcollectd/internal/aggregate"
	"github.com/metalgrid/sflowcollectd/internal/sflow"
	"github.com/metalgrid/sflowcollectd/internal/source"
)

const receiveBufferSize = 9000

// Coordinator owns the packet source, the aggregate tables, and the
// bounded channel feeding the decode worker.
type Coordinator struct {
	log      *zap.Logger
	receiver source.Receiver
	tables   *aggregate.Tables
	queue    chan []byte

	decodeErrors atomic.Uint64
}

// New builds a Coordinator with a queue of the given depth between the
// ingest loop and the decode worker.
func New(log *zap.Logger, receiver source.Receiver, tables *aggregate.Tables, queueSize int) *Coordinator {
	return &Coordinator{
		log:      log,
		receiver: receiver,
		tables:   tables,
		queue:    make(chan []byte, queueSize),
	}
}

// Run is the ingest loop: receive, account the per-source-IP table, copy
// the buffer, and hand it to the decode worker without blocking. It
// returns once ctx is cancelled, including when a Receive that the
// receiver's Close unblocked fails after cancellation; a receive error
// while ctx is still live is logged and the loop continues.
func (c *Coordinator) Run(ctx context.Context) {
	buf := make([]byte, receiveBufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, srcAddr, err := c.receiver.Receive(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("receive failed, continuing", zap.Error(err))
			continue
		}

		c.tables.RecordSource(srcAddr, n)

		cp := make([]byte, n)
		copy(cp, buf[:n])

		select {
		case c.queue <- cp:
		default:
			c.log.Warn("decode queue full, dropping datagram", zap.String("source", srcAddr), zap.Int("bytes", n))
		}
	}
}

// DecodeWorker is the dedicated decode goroutine: it drains the queue,
// decodes each datagram, and folds every sample into the aggregate
// tables. It returns as soon as ctx is cancelled; buffers still waiting
// in the queue at that point are not decoded.
func (c *Coordinator) DecodeWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-c.queue:
			c.decodeAndFold(buf)
		}
	}
}

func (c *Coordinator) decodeAndFold(buf []byte) {
	datagram, err := sflow.Decode(buf)
	if err != nil {
		c.decodeErrors.Add(1)
		c.log.Warn("decode failed, dropping datagram", zap.Error(err))
		return
	}

	agentAddr := datagram.AgentAddress.String()
	for _, sample := range datagram.Samples {
		if sample.Unrecognized {
			c.log.Debug("unrecognized sample type", zap.Uint32("sample_type", sample.SampleType))
		}

		kind := strconv.FormatUint(uint64(sample.SampleType), 10)
		c.tables.RecordAgentSample(agentAddr, kind, sample.SampleLength)

		switch sample.SampleType {
		case sflow.SampleTypeFlow, sflow.SampleTypeFlowExpanded:
			c.tables.CollectFlow(sample)
		}
	}
}

// Close releases the underlying receiver, unblocking a pending Receive.
func (c *Coordinator) Close() error {
	return c.receiver.Close()
}

// DecodeErrors reports the running count of sflow.Decode failures, for
// the periodic statistics log.
func (c *Coordinator) DecodeErrors() uint64 {
	return c.decodeErrors.Load()
}

// QueueDepth reports how many decoded-pending buffers are currently
// sitting in the ingest-to-decoder channel.
func (c *Coordinator) QueueDepth() int {
	return len(c.queue)
}
