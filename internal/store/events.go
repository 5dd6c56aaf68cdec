package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"leadline/internal/domain"
)

const (
	eventsFile = "events.log"
	eventsLock = "events"
	tailWindow = 16 * 1024
)

func (s *Store) eventsPath() string {
	return filepath.Join(s.dir, eventsFile)
}

// AppendEvent writes one line to the append-only transition log. The log is
// never rewritten; a torn final line from a crash is skipped by readers.
func (s *Store) AppendEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload map[string]any) (domain.Event, error) {
	release, err := s.acquire(ctx, eventsLock)
	if err != nil {
		return domain.Event{}, err
	}
	defer release()

	if payload == nil {
		payload = map[string]any{}
	}
	evt := domain.Event{
		Seq:        lastSeq(s.eventsPath()) + 1,
		TS:         s.now().UTC().Format(time.RFC3339),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    payload,
	}
	line, err := json.Marshal(evt)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event: %w", err)
	}
	f, err := os.OpenFile(s.eventsPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.Event{}, err
	}
	defer f.Close()
	// A crash can leave a torn line without its newline; restore framing so
	// the new event starts on its own line.
	if !endsWithNewline(s.eventsPath()) {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return domain.Event{}, err
		}
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return domain.Event{}, err
	}
	if err := f.Sync(); err != nil {
		return domain.Event{}, err
	}
	return evt, nil
}

func endsWithNewline(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return true
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil {
		return true
	}
	return buf[0] == '\n'
}

// lastSeq reads the tail of the log and returns the sequence of the last
// complete line, or 0 for an empty log.
func lastSeq(path string) int64 {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return 0
	}
	off := info.Size() - tailWindow
	if off < 0 {
		off = 0
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return 0
	}
	var last int64
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var evt domain.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			continue
		}
		if evt.Seq > last {
			last = evt.Seq
		}
	}
	return last
}

// EventsAfter returns up to limit events with Seq greater than after, in log
// order. limit <= 0 means no limit.
func (s *Store) EventsAfter(_ context.Context, after int64, limit int) ([]domain.Event, error) {
	f, err := os.Open(s.eventsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var out []domain.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var evt domain.Event
		if err := json.Unmarshal(line, &evt); err != nil {
			continue
		}
		if evt.Seq <= after {
			continue
		}
		out = append(out, evt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, sc.Err()
}

// TailEvents returns the last n events.
func (s *Store) TailEvents(ctx context.Context, n int) ([]domain.Event, error) {
	all, err := s.EventsAfter(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
