package logger

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

const (
	axiomBatch    = 200
	axiomBacklog  = 5000
	axiomDeadline = 15 * time.Second
)

type ingestFunc func(ctx context.Context, events []axiom.Event) error

// axiomSink is a zerolog.LevelWriter that ships info and above to Axiom
// in batches. Write never blocks on the network; events beyond the
// backlog are dropped.
type axiomSink struct {
	ingest ingestFunc

	mu      sync.Mutex
	pending []axiom.Event
	kick    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

func dialAxiom(opts Options) (*axiomSink, error) {
	copts := []axiom.Option{axiom.SetToken(opts.AxiomAPIKey)}
	if opts.AxiomOrgID != "" {
		copts = append(copts, axiom.SetOrganizationID(opts.AxiomOrgID))
	}
	client, err := axiom.NewClient(copts...)
	if err != nil {
		return nil, err
	}
	dataset := opts.AxiomDataset
	if dataset == "" {
		dataset = "dev_" + service
	}
	return newAxiomSink(func(ctx context.Context, events []axiom.Event) error {
		_, err := client.IngestEvents(ctx, dataset, events)
		return err
	}, opts.AxiomFlush), nil
}

func newAxiomSink(fn ingestFunc, every time.Duration) *axiomSink {
	if every <= 0 {
		every = 10 * time.Second
	}
	s := &axiomSink{
		ingest: fn,
		kick:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(every)
	return s
}

func (s *axiomSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.NoLevel, p)
}

func (s *axiomSink) WriteLevel(lvl zerolog.Level, p []byte) (int, error) {
	if lvl < zerolog.InfoLevel {
		return len(p), nil
	}
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p)}
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}

	s.mu.Lock()
	if len(s.pending) < axiomBacklog {
		s.pending = append(s.pending, ev)
	}
	full := len(s.pending) >= axiomBatch
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (s *axiomSink) run(every time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			s.flush()
			return
		case <-t.C:
			s.flush()
		case <-s.kick:
			s.flush()
		}
	}
}

// flush sends the backlog in batches. Failed batches are not retried.
func (s *axiomSink) flush() {
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for len(events) > 0 {
		n := min(len(events), axiomBatch)
		ctx, cancel := context.WithTimeout(context.Background(), axiomDeadline)
		_ = s.ingest(ctx, events[:n])
		cancel()
		events = events[n:]
	}
}

// Close stops the flush loop after a final flush.
func (s *axiomSink) Close() {
	close(s.stop)
	<-s.done
}
