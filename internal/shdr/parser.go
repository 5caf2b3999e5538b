// Package shdr implements the wire parser for the pipe-delimited SHDR
// dialect described in spec.md §4.1: turning one adapter line into a
// normalized observation batch or an asset command.
package shdr

import (
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

// Resolver is the narrow slice of schema.Registry the parser depends
// on, to avoid an import cycle between shdr and schema.
type Resolver interface {
	Resolve(uuid, name string) (model.DataItemKind, bool)
}

var isoTimestampRe = regexp.MustCompile(`^\d{4}-`)

const multilineSentinelPrefix = "--multiline--"

// pendingAsset buffers a multi-line asset body between calls to Parse
// (rule 4 of spec.md §4.1), keyed by device uuid since each device
// may have at most one multi-line block open at a time.
type pendingAsset struct {
	sentinel string
	verb     string
	time     string
	assetID  string
	assetTyp string
	lines    []string
}

// Parser is stateful: it carries the multi-line asset buffer across
// calls to Parse, so one Parser must be reused for a given device's
// adapter stream.
type Parser struct {
	resolver Resolver
	log      *zap.Logger
	pending  map[string]*pendingAsset
}

func NewParser(resolver Resolver, log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{resolver: resolver, log: log, pending: make(map[string]*pendingAsset)}
}

// Result is the output of one call to Parse: either a batch of
// observations sharing one timestamp, or a single asset command.
// Both fields are nil when the line was consumed into a multi-line
// buffer and produced nothing yet.
type Result struct {
	Observations []model.Observation
	Asset        *model.AssetCommand
}

// Parse turns one raw adapter line into a Result. Malformed lines and
// unresolvable dataitem names are recoverable: they are logged and
// skipped rather than returned as an error (spec.md §7).
func (p *Parser) Parse(uuid, line string) (*Result, error) {
	if pa, buffering := p.pending[uuid]; buffering {
		if strings.TrimRight(line, "\r") == pa.sentinel {
			delete(p.pending, uuid)
			return &Result{Asset: &model.AssetCommand{
				Verb:      pa.verb,
				Time:      pa.time,
				AssetID:   pa.assetID,
				AssetType: pa.assetTyp,
				Body:      strings.Join(pa.lines, "\n"),
			}}, nil
		}
		pa.lines = append(pa.lines, line)
		return &Result{}, nil
	}

	fields := strings.Split(line, "|")
	if len(fields) < 2 {
		p.log.Warn("shdr: malformed line, too few fields", zap.String("line", line))
		return &Result{}, nil
	}

	ts := resolveTimestamp(fields[0])

	switch fields[1] {
	case model.VerbAsset:
		return p.parseAsset(uuid, ts, fields)
	case model.VerbUpdateAsset:
		return p.parseUpdateAsset(uuid, ts, fields)
	case model.VerbRemoveAsset:
		if len(fields) < 3 {
			p.log.Warn("shdr: malformed @REMOVE_ASSET@ line", zap.String("line", line))
			return &Result{}, nil
		}
		return &Result{Asset: &model.AssetCommand{Verb: model.VerbRemoveAsset, Time: ts, AssetID: fields[2]}}, nil
	case model.VerbRemoveAllAssets:
		if len(fields) < 3 {
			p.log.Warn("shdr: malformed @REMOVE_ALL_ASSETS@ line", zap.String("line", line))
			return &Result{}, nil
		}
		return &Result{Asset: &model.AssetCommand{Verb: model.VerbRemoveAllAssets, Time: ts, AssetType: fields[2]}}, nil
	default:
		return p.parseDataItems(uuid, ts, fields[1:])
	}
}

// resolveTimestamp applies rule 1: an empty first field is replaced by
// the current wall time (UTC, RFC 3339); any other value is passed
// through verbatim.
func resolveTimestamp(field string) string {
	if field == "" {
		return time.Now().UTC().Format(time.RFC3339Nano)
	}
	if isoTimestampRe.MatchString(field) {
		return field
	}
	// Relative/opaque leading-number time (TIME_SERIES convention):
	// passed through verbatim per spec.md §9's Open Question resolution.
	return field
}

func (p *Parser) parseAsset(uuid, ts string, fields []string) (*Result, error) {
	if len(fields) < 5 {
		p.log.Warn("shdr: malformed @ASSET@ line")
		return &Result{}, nil
	}
	id, typ := fields[2], fields[3]
	body := strings.Join(fields[4:], "|")
	if strings.HasPrefix(body, multilineSentinelPrefix) {
		p.pending[uuid] = &pendingAsset{sentinel: body, verb: model.VerbAsset, time: ts, assetID: id, assetTyp: typ}
		return &Result{}, nil
	}
	return &Result{Asset: &model.AssetCommand{Verb: model.VerbAsset, Time: ts, AssetID: id, AssetType: typ, Body: body}}, nil
}

func (p *Parser) parseUpdateAsset(uuid, ts string, fields []string) (*Result, error) {
	if len(fields) < 4 {
		p.log.Warn("shdr: malformed @UPDATE_ASSET@ line")
		return &Result{}, nil
	}
	id := fields[2]
	rest := fields[3:]
	joined := strings.Join(rest, "|")
	if strings.HasPrefix(joined, multilineSentinelPrefix) {
		p.pending[uuid] = &pendingAsset{sentinel: joined, verb: model.VerbUpdateAsset, time: ts, assetID: id}
		return &Result{}, nil
	}

	cmd := &model.AssetCommand{Verb: model.VerbUpdateAsset, Time: ts, AssetID: id}
	if len(rest) > 0 && len(rest)%2 == 0 && !strings.HasPrefix(strings.TrimSpace(rest[0]), "<") {
		for i := 0; i+1 < len(rest); i += 2 {
			cmd.KVPairs = append(cmd.KVPairs, model.KV{Name: rest[i], Value: rest[i+1]})
		}
	} else {
		cmd.Fragment = joined
	}
	return &Result{Asset: cmd}, nil
}

func (p *Parser) parseDataItems(uuid, ts string, fields []string) (*Result, error) {
	var obs []model.Observation
	i := 0
	for i < len(fields) {
		name := fields[i]
		if name == "" {
			i++
			continue
		}
		kind, ok := p.resolver.Resolve(uuid, name)
		if !ok {
			p.log.Warn("shdr: unknown dataitem name, skipping pair", zap.String("uuid", uuid), zap.String("name", name))
			i += 2
			continue
		}

		remaining := fields[i+1:]
		o := model.Observation{
			Time:           ts,
			DeviceUUID:     uuid,
			ID:             kind.ID,
			DataItemName:   name,
			Category:       kind.Category,
			Type:           kind.Type,
			Representation: kind.Representation,
		}

		switch {
		case kind.Category == model.CategoryCondition:
			if len(remaining) < 5 {
				p.log.Warn("shdr: truncated CONDITION tuple", zap.String("name", name))
				return &Result{Observations: obs}, nil
			}
			o.Value = model.ConditionOf(remaining[0], remaining[1], remaining[2], remaining[3], remaining[4])
			i += 6
		case kind.Representation == model.RepresentationTimeSeries:
			if len(remaining) < 3 {
				p.log.Warn("shdr: truncated TIME_SERIES tuple", zap.String("name", name))
				return &Result{Observations: obs}, nil
			}
			samples := strings.Join(remaining[2:], " ")
			o.Value = model.TimeSeriesOf(remaining[0], remaining[1], samples)
			i = len(fields) // TIME_SERIES consumes the remainder of the line
		case kind.Type == model.TypeMessage:
			if len(remaining) < 2 {
				p.log.Warn("shdr: truncated MESSAGE tuple", zap.String("name", name))
				return &Result{Observations: obs}, nil
			}
			o.Value = model.MessageOf(remaining[0], remaining[1])
			i += 3
		case kind.Type == model.TypeAlarm:
			if len(remaining) < 5 {
				p.log.Warn("shdr: truncated ALARM tuple", zap.String("name", name))
				return &Result{Observations: obs}, nil
			}
			o.Value = model.AlarmOf(remaining[0], remaining[1], remaining[2], remaining[3], remaining[4])
			i += 6
		default:
			if len(remaining) < 1 {
				p.log.Warn("shdr: missing value field", zap.String("name", name))
				return &Result{Observations: obs}, nil
			}
			o.Value = model.ScalarValue(remaining[0])
			i += 2
		}
		obs = append(obs, o)
	}
	return &Result{Observations: obs}, nil
}

// DiscardPending drops any in-flight multi-line asset buffer for a
// device (spec.md §7's "multi-line asset terminated prematurely"
// recoverable case). The adapter client does not call it: a block cut
// off by a lost connection stays buffered until its closing sentinel
// arrives.
func (p *Parser) DiscardPending(uuid string) {
	delete(p.pending, uuid)
}
