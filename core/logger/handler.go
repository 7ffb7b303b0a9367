package logger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
	redacted         = "[redacted]"
)

// secretKeys never reach the output with their value.
var secretKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"access":        {},
	"refresh":       {},
	"authorization": {},
	"bot_token":     {},
}

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders flat records: groups are joined with dots and
// every line carries ts, level, component and event.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}
	jsonOut := h.cfg.format == formatJSON

	e := make(entry, 16)
	ts := r.Time.UTC()
	e["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	e["level"] = normalizeLevel(r.Level.String())
	if jsonOut {
		e["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.attrs {
		e.addFlat(a.Key, a.Value.Resolve())
	}
	r.Attrs(func(a slog.Attr) bool {
		e.add(h.prefix, a)
		return true
	})
	e.fromContext(ctx)
	e.compactRID(jsonOut)

	if ev, _ := e.str("event"); ev == "" {
		e["event"] = "unknown"
		if r.Message != "" {
			e["event"] = r.Message
		}
	}
	if comp, _ := e.str("component"); comp == "" {
		e["component"] = "app"
	}
	e.normalize()

	var line []byte
	var err error
	if jsonOut {
		line, err = encodeJSON(e, h.cfg.keyOrder)
	} else {
		line = encodeKV(e, h.cfg.keyOrder)
	}
	if err != nil {
		return err
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	// stored fully qualified: later groups do not apply to them
	for _, a := range attrs {
		if h.prefix != "" && a.Key != "" {
			a.Key = h.prefix + "." + a.Key
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	if clone.prefix == "" {
		clone.prefix = name
	} else {
		clone.prefix += "." + name
	}
	return &clone
}

// entry holds the fields of one line.
type entry map[string]any

func (e entry) str(key string) (string, bool) {
	v, ok := e[key]
	if !ok {
		return "", false
	}
	if s, isStr := v.(string); isStr {
		return s, true
	}
	return fmt.Sprint(v), true
}

func (e entry) setIfMissing(key string, v any) {
	if _, ok := e[key]; !ok {
		e[key] = v
	}
}

// add flattens a into e under the current group prefix.
func (e entry) add(prefix string, a slog.Attr) {
	if prefix != "" && a.Key != "" {
		a.Key = prefix + "." + a.Key
	}
	e.addFlat(a.Key, a.Value.Resolve())
}

func (e entry) addFlat(key string, v slog.Value) {
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			k := child.Key
			if key != "" {
				k = key + "." + k
			}
			e.addFlat(k, child.Value.Resolve())
		}
		return
	}
	if key == "" {
		return
	}
	leaf := key[strings.LastIndexByte(key, '.')+1:]
	if _, secret := secretKeys[strings.ToLower(leaf)]; secret {
		e[key] = redacted
		return
	}
	if k, val, ok := plainValue(key, v); ok {
		e[k] = val
	}
}

func (e entry) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		e.setIfMissing("rid", rid)
	}
	if id := UpdateIDFrom(ctx); id != 0 {
		e.setIfMissing("update_id", id)
	}
	if id := UserIDFrom(ctx); id != 0 {
		e.setIfMissing("user_id", id)
	}
	if id := ChatIDFrom(ctx); id != 0 {
		e.setIfMissing("chat_id", id)
	}
	if name := HandlerFrom(ctx); name != "" {
		e.setIfMissing("handler", name)
	}
}

// compactRID shortens "update:chat:user" rids; JSON lines keep the original
// as rid_full.
func (e entry) compactRID(keepFull bool) {
	rid, ok := e.str("rid")
	if !ok || rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if keepFull {
		e.setIfMissing("rid_full", rid)
	}
	e["rid"] = compact
}

// normalize maps level, status and outcome onto the known vocabulary and
// drops empty values. Unknown statuses are kept lowercased, unknown
// outcomes are dropped.
func (e entry) normalize() {
	if lvl, ok := e.str("level"); ok {
		e["level"] = normalizeLevel(lvl)
	}
	if s, ok := e.str("status"); ok && s != "" {
		e["status"], _ = normalizeStatus(s)
	}
	if o, ok := e.str("outcome"); ok && o != "" {
		if norm, valid := normalizeOutcome(o); valid {
			e["outcome"] = norm
		} else {
			delete(e, "outcome")
		}
	}
	for k, v := range e {
		switch val := v.(type) {
		case nil:
			delete(e, k)
		case string:
			if val == "" {
				delete(e, k)
			}
		}
	}
}

// plainValue converts v to a JSON-friendly value. Durations become whole
// milliseconds under a *_ms key.
func plainValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey appends the _ms unit suffix unless the key already has it.
func durationKey(key string) string {
	if strings.HasSuffix(key, "_ms") {
		return key
	}
	return key + "_ms"
}
