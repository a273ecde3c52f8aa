// Package batlog connects the battery log store to the bus: gauge log batches
// published on battery/<serial>/log are synced into the store, and the
// outcome is published retained under batlog/<serial>/.
package batlog

import (
	"context"
	"encoding/json"
	"time"

	"batlog-go/acquisition"
	logstore "batlog-go/batlog"
	"batlog-go/bus"
	"batlog-go/drivers/spinand"
	"batlog-go/errcode"
	"batlog-go/types"
)

var (
	topicLogs  = bus.Topic{"battery", "+", "log"}
	topicDiag  = bus.Topic{"batlog", "diag"}
	topicState = bus.Topic{"batlog", "state"}
)

// LogTopic is where a gauge reader publishes a types.LogBatch.
func LogTopic(serial string) bus.Topic { return bus.Topic{"battery", serial, "log"} }

// SyncTopic carries the retained types.SyncReport of the last good sync.
func SyncTopic(serial string) bus.Topic { return bus.Topic{"batlog", serial, "sync"} }

// ErrorTopic carries the retained types.ErrorReply of the last failed sync;
// it is cleared by the next good one.
func ErrorTopic(serial string) bus.Topic { return bus.Topic{"batlog", serial, "error"} }

// Flash is the part of the flash driver used for diagnostics.
type Flash interface {
	BadBlockCount() (int, error)
	ScanECC(first uint32, count int) (spinand.ECCStats, error)
}

type Options struct {
	Store *logstore.Store
	Flash Flash // nil when the store is not on raw flash

	// Sources are read every Interval and their batches published on the bus.
	Sources  []acquisition.Source
	Interval time.Duration

	Now func() time.Time
}

type Service struct {
	store    *logstore.Store
	flash    Flash
	sources  []acquisition.Source
	interval time.Duration
	now      func() time.Time

	conn *bus.Connection
}

func New(o Options) *Service {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	return &Service{
		store:    o.Store,
		flash:    o.Flash,
		sources:  o.Sources,
		interval: o.Interval,
		now:      o.Now,
	}
}

// Start runs the service loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if s.store == nil {
		return errcode.New(errcode.InvalidArgument, "batlog.service", "no store")
	}
	s.conn = conn
	go s.serviceLoop(ctx)
	return nil
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *Service) serviceLoop(ctx context.Context) {
	logSub := s.conn.Subscribe(topicLogs)
	diagSub := s.conn.Subscribe(topicDiag)
	defer s.conn.Unsubscribe(logSub)
	defer s.conn.Unsubscribe(diagSub)

	var tick <-chan time.Time
	if len(s.sources) > 0 {
		t := time.NewTicker(s.interval)
		defer t.Stop()
		tick = t.C
	}

	s.publishState("ready", "running", nil)

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg, ok := <-logSub.Channel():
			if !ok {
				return
			}
			s.handleLog(msg)

		case msg, ok := <-diagSub.Channel():
			if !ok {
				return
			}
			s.handleDiag(msg)

		case <-tick:
			s.pollSources(ctx)
		}
	}
}

// pollSources publishes one batch per source; the log subscription picks
// them up like any other producer's.
func (s *Service) pollSources(ctx context.Context) {
	for _, src := range s.sources {
		entries, err := src.ReadLog(ctx)
		if err != nil {
			if errcode.Of(err) != errcode.NotFound {
				println("Error: batlog: read", src.Serial(), err.Error())
			}
			continue
		}
		batch := types.LogBatch{Serial: src.Serial(), Entries: make([]types.LogSlot, len(entries))}
		for i, e := range entries {
			batch.Entries[i] = types.LogSlot{RingPosition: e.RingPosition, Payload: e.Payload}
		}
		s.conn.Publish(s.conn.NewMessage(LogTopic(src.Serial()), batch, false))
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Service) handleLog(msg *bus.Message) {
	// battery/<serial>/log
	if len(msg.Topic) != 3 {
		return
	}
	batch, err := asBatch(msg.Payload)
	serial := msg.Topic[1]
	if err == nil && batch.Serial != "" && batch.Serial != serial {
		err = errcode.New(errcode.InvalidArgument, "batlog.service", "serial mismatch "+batch.Serial)
	}
	if err != nil {
		s.fail(msg, serial, err)
		return
	}

	entries := make([]logstore.Entry, len(batch.Entries))
	for i, e := range batch.Entries {
		entries[i] = logstore.Entry{RingPosition: e.RingPosition, Payload: e.Payload}
	}
	res, err := s.store.Sync(serial, entries)
	if err != nil {
		s.fail(msg, serial, err)
		return
	}
	s.conn.Publish(s.conn.NewMessage(ErrorTopic(serial), nil, true))
	s.conn.Publish(s.conn.NewMessage(SyncTopic(serial), types.SyncReport{
		Serial:       serial,
		Mode:         string(res.Mode),
		Appended:     res.Appended,
		Skipped:      res.Skipped,
		RecordCount:  res.Metadata.RecordCount,
		LastPosition: res.Metadata.LastRingPosition,
		TS:           s.now().UnixMilli(),
	}, true))
	s.reply(msg, types.ErrorReply{OK: true})
}

func (s *Service) handleDiag(msg *bus.Message) {
	var req types.DiagRequest
	if msg.Payload != nil {
		if err := decodeJSON(msg.Payload, &req); err != nil {
			s.replyErr(msg, errcode.Wrap(errcode.InvalidArgument, "batlog.diag", err))
			return
		}
	}
	d, err := s.Diagnose(req)
	if err != nil {
		s.replyErr(msg, err)
		return
	}
	s.reply(msg, d)
}

// Diagnose collects store usage and, on flash, bad-block and optionally ECC
// statistics.
func (s *Service) Diagnose(req types.DiagRequest) (types.Diagnostics, error) {
	d := types.Diagnostics{BadBlocks: -1}
	u, err := s.store.Usage()
	if err != nil && errcode.Of(err) != errcode.Unsupported {
		return d, err
	}
	d.TotalKB, d.UsedKB, d.FreeKB = u.TotalKB(), u.UsedKB(), u.FreeKB()

	series, err := s.store.Series()
	if err != nil {
		return d, err
	}
	d.Series = len(series)

	if s.flash == nil {
		return d, nil
	}
	if d.BadBlocks, err = s.flash.BadBlockCount(); err != nil {
		return d, err
	}
	if req.ECC {
		st, err := s.flash.ScanECC(0, 0)
		if err != nil {
			return d, err
		}
		e := &types.ECCSummary{Pages: st.Pages, Corrected: st.Corrected, Uncorrectable: st.Uncorrectable, FirstBad: -1}
		if st.Uncorrectable > 0 {
			e.FirstBad = int64(st.FirstBad)
		}
		d.ECC = e
	}
	return d, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func asBatch(p any) (types.LogBatch, error) {
	switch v := p.(type) {
	case types.LogBatch:
		return v, nil
	case *types.LogBatch:
		if v == nil {
			break
		}
		return *v, nil
	default:
		var b types.LogBatch
		if err := decodeJSON(p, &b); err != nil {
			return b, errcode.Wrap(errcode.InvalidArgument, "batlog.service", err)
		}
		return b, nil
	}
	return types.LogBatch{}, errcode.New(errcode.InvalidArgument, "batlog.service", "empty batch")
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": s.now().UnixMilli()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(topicState, payload, true))
}

// fail publishes a sync failure retained and answers the sender if it asked.
func (s *Service) fail(req *bus.Message, serial string, err error) {
	println("Error: batlog:", serial, err.Error())
	rep := types.ErrorReply{Code: string(errcode.Of(err)), Error: err.Error()}
	s.conn.Publish(s.conn.NewMessage(ErrorTopic(serial), rep, true))
	s.reply(req, rep)
}

func (s *Service) reply(req *bus.Message, payload any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, payload, false)
}

func (s *Service) replyErr(req *bus.Message, err error) {
	s.reply(req, types.ErrorReply{Code: string(errcode.Of(err)), Error: err.Error()})
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}
