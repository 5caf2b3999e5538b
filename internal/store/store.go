// Package store implements the ring-buffered history, the
// current/last hash maps, and the asset store described in spec.md
// §3/§4.3/§4.4. The agent is single-writer for mutation (spec.md §5):
// one ingest sequencer calls Update/ApplyAssetCommand serially, while
// HTTP handlers only call the read-only accessors, which take the
// read half of the same mutex.
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
	"github.com/micheletedeschi/mtconnect-agent/internal/xmlutil"
)

// ErrOutOfRange is returned by SampleWindow when from falls outside
// [firstSequence, nextSequence] (spec.md §7's OUT_OF_RANGE).
var ErrOutOfRange = errors.New("OUT_OF_RANGE")

// Sequence reports the three sequence-number watermarks spec.md §4.3
// exposes through getSequence.
type Sequence struct {
	FirstSequence uint64
	LastSequence  uint64
	NextSequence  uint64
}

type conditionSet struct {
	order  []string
	byCode map[string]model.ConditionValue
}

func newConditionSet() *conditionSet {
	return &conditionSet{byCode: make(map[string]model.ConditionValue)}
}

func (cs *conditionSet) upsert(nativeCode string, v model.ConditionValue) {
	if _, exists := cs.byCode[nativeCode]; !exists {
		cs.order = append(cs.order, nativeCode)
	}
	cs.byCode[nativeCode] = v
}

func (cs *conditionSet) clear() {
	cs.order = nil
	cs.byCode = make(map[string]model.ConditionValue)
}

func (cs *conditionSet) list() []model.ConditionValue {
	out := make([]model.ConditionValue, 0, len(cs.order))
	for _, nc := range cs.order {
		out = append(out, cs.byCode[nc])
	}
	return out
}

// Store holds the five stores from spec.md §3 as one explicit value,
// per §9's re-expression of the source's global singletons.
type Store struct {
	mu sync.RWMutex

	capacity uint64
	ring     []model.Observation
	nextSeq  uint64 // next sequence to hand out
	assigned uint64 // count of observations ever assigned

	hashCurrent  map[string]model.Observation
	hashLast     map[string]model.Observation
	currentOrder []string

	activeConditions map[string]*conditionSet

	assetCapacity      uint64
	assetRing          []*model.Asset
	assetNextSeq       uint64
	assetAssigned      uint64
	hashAssetCurrent   map[string]*model.Asset
	assetCreationOrder []string
	lastChangedAssetID string
}

// New builds a Store with the given ring/asset-buffer capacities
// (spec.md §3's default 10000/1024, configurable per SPEC_FULL.md's
// Config section).
func New(ringCapacity, assetBufferCapacity uint64) *Store {
	if ringCapacity == 0 {
		ringCapacity = 10000
	}
	if assetBufferCapacity == 0 {
		assetBufferCapacity = 1024
	}
	return &Store{
		capacity:         ringCapacity,
		ring:             make([]model.Observation, ringCapacity),
		nextSeq:          1,
		hashCurrent:      make(map[string]model.Observation),
		hashLast:         make(map[string]model.Observation),
		activeConditions: make(map[string]*conditionSet),
		assetCapacity:    assetBufferCapacity,
		assetRing:        make([]*model.Asset, assetBufferCapacity),
		assetNextSeq:     1,
		hashAssetCurrent: make(map[string]*model.Asset),
	}
}

// GetSequence reports the current sequence watermarks.
func (s *Store) GetSequence() Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSequenceLocked()
}

func (s *Store) getSequenceLocked() Sequence {
	var first uint64
	if s.assigned > 0 {
		if s.assigned > s.capacity {
			first = s.nextSeq - s.capacity
		} else {
			first = 1
		}
	}
	var last uint64
	if s.nextSeq > 1 {
		last = s.nextSeq - 1
	}
	return Sequence{FirstSequence: first, LastSequence: last, NextSequence: s.nextSeq}
}

func (s *Store) assign(obs model.Observation) model.Observation {
	obs.Sequence = s.nextSeq
	s.nextSeq++
	s.assigned++

	if _, seen := s.hashCurrent[obs.ID]; !seen {
		s.currentOrder = append(s.currentOrder, obs.ID)
	}
	s.hashLast[obs.ID] = s.hashCurrent[obs.ID]
	s.hashCurrent[obs.ID] = obs
	s.ring[(obs.Sequence-1)%s.capacity] = obs
	return obs
}

// Update applies the algorithm from spec.md §4.3 to one already
// schema-resolved observation (name→id resolution happens once, in
// the SHDR parser, so by the time an Observation reaches Update its
// ID/Category/Type/Representation are already populated). It returns
// the stored observation and true, or a zero Observation and false
// when it was suppressed as an unchanged duplicate.
func (s *Store) Update(obs model.Observation) (model.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, hasPrev := s.hashCurrent[obs.ID]
	if hasPrev && prev.Value.Equal(obs.Value) {
		return model.Observation{}, false
	}

	obs = s.assign(obs)

	if obs.Category == model.CategoryCondition {
		cs, ok := s.activeConditions[obs.ID]
		if !ok {
			cs = newConditionSet()
			s.activeConditions[obs.ID] = cs
		}
		cv := obs.Value.Condition
		if (cv.Level == model.ConditionNormal || cv.Level == model.ConditionUnavailable) && cv.NativeCode == "" {
			cs.clear()
		} else {
			cs.upsert(cv.NativeCode, cv)
		}
	}

	return obs, true
}

// GetActiveConditions returns the current multi-status condition list
// for a dataitem id, used by the /current serializer to emit one
// <Entry> per active condition.
func (s *Store) GetActiveConditions(id string) []model.ConditionValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.activeConditions[id]
	if !ok {
		return nil
	}
	return cs.list()
}

// SnapshotCurrent returns the hashCurrent entry for each requested id,
// or for every known id (in first-seen order) when ids is empty.
func (s *Store) SnapshotCurrent(ids []string) []model.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(ids) == 0 {
		ids = s.currentOrder
	}
	out := make([]model.Observation, 0, len(ids))
	for _, id := range ids {
		if obs, ok := s.hashCurrent[id]; ok {
			out = append(out, obs)
		}
	}
	return out
}

// SnapshotAt reconstructs the per-id "current" view as of a
// historical sequence number (spec.md §6's `/current?at=<seq>`): for
// each requested id, the latest observation with sequence <= at,
// scanned from the ring. at outside the currently retained
// [firstSequence, lastSequence] window is OUT_OF_RANGE, same as
// SampleWindow's from.
func (s *Store) SnapshotAt(ids []string, at uint64) ([]model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.getSequenceLocked()
	if s.assigned > 0 && (at < seq.FirstSequence || at > seq.LastSequence) {
		return nil, fmt.Errorf("%w: at=%d not in [%d,%d]", ErrOutOfRange, at, seq.FirstSequence, seq.LastSequence)
	}

	var want map[string]bool
	if len(ids) > 0 {
		want = make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}

	latest := make(map[string]model.Observation)
	var order []string
	for sv := seq.FirstSequence; sv > 0 && sv <= at; sv++ {
		obs := s.ring[(sv-1)%s.capacity]
		if obs.Sequence != sv {
			continue // evicted
		}
		if want != nil && !want[obs.ID] {
			continue
		}
		if _, exists := latest[obs.ID]; !exists {
			order = append(order, obs.ID)
		}
		latest[obs.ID] = obs
	}

	out := make([]model.Observation, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out, nil
}

// SampleWindow returns observations with sequence in [from, from+count)
// intersected with ids (all ids if empty), in sequence order. count is
// silently truncated to the ring capacity rather than erroring
// (spec.md §5's resource-limit rule).
func (s *Store) SampleWindow(ids []string, from, count uint64) ([]model.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq := s.getSequenceLocked()
	if s.assigned > 0 && (from < seq.FirstSequence || from > seq.NextSequence) {
		return nil, fmt.Errorf("%w: from=%d not in [%d,%d]", ErrOutOfRange, from, seq.FirstSequence, seq.NextSequence)
	}
	if count > s.capacity {
		count = s.capacity
	}

	var want map[string]bool
	if len(ids) > 0 {
		want = make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}

	end := from + count
	if end > seq.NextSequence {
		end = seq.NextSequence
	}

	out := make([]model.Observation, 0, count)
	for sv := from; sv < end; sv++ {
		if sv == 0 {
			continue
		}
		obs := s.ring[(sv-1)%s.capacity]
		if obs.Sequence != sv {
			continue // evicted
		}
		if want != nil && !want[obs.ID] {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

// recordAlways assigns a sequence and stores an observation
// unconditionally, bypassing the duplicate-suppression check. Used
// only for the ASSET_CHANGED/ASSET_REMOVED synthetic observations,
// which spec.md §3 says are produced on "every" successful asset
// command regardless of repeated values.
func (s *Store) recordAlways(id, name, category string, value model.Value, t string) model.Observation {
	return s.assign(model.Observation{
		Time:           t,
		ID:             id,
		DataItemName:   name,
		Category:       category,
		Representation: model.RepresentationValue,
		Value:          value,
	})
}

func (s *Store) pushAssetBuffer(a *model.Asset) {
	a.Sequence = s.assetNextSeq
	s.assetNextSeq++
	s.assetAssigned++
	s.assetRing[(a.Sequence-1)%s.assetCapacity] = a
}

// ApplyAssetCommand applies one of the four asset verbs (spec.md
// §4.4) and returns any derived ASSET_CHANGED/ASSET_REMOVED
// observations it produced, in emission order.
func (s *Store) ApplyAssetCommand(cmd *model.AssetCommand) ([]model.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Verb {
	case model.VerbAsset:
		return s.applyAsset(cmd)
	case model.VerbUpdateAsset:
		return s.applyUpdateAsset(cmd)
	case model.VerbRemoveAsset:
		return s.applyRemoveAsset(cmd)
	case model.VerbRemoveAllAssets:
		return s.applyRemoveAllAssets(cmd)
	default:
		return nil, fmt.Errorf("UNSUPPORTED: asset verb %q", cmd.Verb)
	}
}

func (s *Store) applyAsset(cmd *model.AssetCommand) ([]model.Observation, error) {
	asset := &model.Asset{AssetID: cmd.AssetID, AssetType: cmd.AssetType, Time: cmd.Time}
	if tree, err := xmlutil.ParseXML(cmd.Body); err == nil {
		asset.Value = tree
	} else {
		asset.RawValue = cmd.Body
	}

	if _, exists := s.hashAssetCurrent[cmd.AssetID]; !exists {
		s.assetCreationOrder = append(s.assetCreationOrder, cmd.AssetID)
	}
	s.hashAssetCurrent[cmd.AssetID] = asset
	s.pushAssetBuffer(&model.Asset{
		AssetID: asset.AssetID, AssetType: asset.AssetType, Time: asset.Time,
		Value: asset.Value.Clone(), RawValue: asset.RawValue, Sequence: asset.Sequence,
	})
	s.lastChangedAssetID = cmd.AssetID

	obs := s.recordAlways(model.AssetChangedID, "AssetChanged", model.CategoryEvent, model.ScalarValue(cmd.AssetID), cmd.Time)
	return []model.Observation{obs}, nil
}

func (s *Store) applyUpdateAsset(cmd *model.AssetCommand) ([]model.Observation, error) {
	asset, ok := s.hashAssetCurrent[cmd.AssetID]
	if !ok {
		return nil, fmt.Errorf("store: @UPDATE_ASSET@ unknown assetId %q", cmd.AssetID)
	}

	switch {
	case len(cmd.KVPairs) > 0:
		if asset.Value == nil {
			return nil, fmt.Errorf("store: @UPDATE_ASSET@ KV form on non-XML asset %q", cmd.AssetID)
		}
		for _, kv := range cmd.KVPairs {
			if values := splitMultiStatus(kv.Value); len(values) > 1 {
				expandRepeatedElement(asset.Value, kv.Name, values)
				continue
			}
			target := asset.Value.Walk(func(n *model.Node) bool { return n.Name == kv.Name })
			if target != nil {
				target.SetTextContent(kv.Value)
			}
		}
	case cmd.Fragment != "":
		fragment, err := xmlutil.ParseXML(cmd.Fragment)
		if err != nil {
			return nil, fmt.Errorf("store: @UPDATE_ASSET@ fragment parse: %w", err)
		}
		if asset.Value == nil {
			return nil, fmt.Errorf("store: @UPDATE_ASSET@ fragment form on non-XML asset %q", cmd.AssetID)
		}
		if !replaceFirstMatch(asset.Value, fragment) {
			return nil, fmt.Errorf("store: @UPDATE_ASSET@ fragment element %q not found in asset %q", fragment.Name, cmd.AssetID)
		}
	}

	asset.Time = cmd.Time
	s.pushAssetBuffer(&model.Asset{
		AssetID: asset.AssetID, AssetType: asset.AssetType, Time: asset.Time,
		Value: asset.Value.Clone(), RawValue: asset.RawValue, Sequence: asset.Sequence,
	})
	s.lastChangedAssetID = cmd.AssetID

	obs := s.recordAlways(model.AssetChangedID, "AssetChanged", model.CategoryEvent, model.ScalarValue(cmd.AssetID), cmd.Time)
	return []model.Observation{obs}, nil
}

// splitMultiStatus splits a KV-update value on "," for multi-status
// fields (e.g. CutterStatus updated as "USED,AVAILABLE"), per spec.md
// §4.5's repeated-child-element rule.
func splitMultiStatus(value string) []string {
	if !strings.Contains(value, ",") {
		return []string{value}
	}
	parts := strings.Split(value, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// expandRepeatedElement finds the first descendant element named
// name, depth-first, and replaces it in its parent's child list with
// one element of the same name per value, order preserved (spec.md
// §4.5: "CutterStatus whose SHDR update was USED,AVAILABLE serialize
// as repeated child elements of the same tag").
func expandRepeatedElement(root *model.Node, name string, values []string) bool {
	if root == nil || root.IsText {
		return false
	}
	for i, c := range root.Children {
		if c.IsText {
			continue
		}
		if c.Name == name {
			nodes := make([]*model.Node, len(values))
			for j, v := range values {
				n := &model.Node{Name: name}
				n.SetTextContent(v)
				nodes[j] = n
			}
			expanded := make([]*model.Node, 0, len(root.Children)-1+len(nodes))
			expanded = append(expanded, root.Children[:i]...)
			expanded = append(expanded, nodes...)
			expanded = append(expanded, root.Children[i+1:]...)
			root.Children = expanded
			return true
		}
		if expandRepeatedElement(c, name, values) {
			return true
		}
	}
	return false
}

// replaceFirstMatch finds the first descendant element named
// fragment.Name, depth-first, and swaps it in place (spec.md §4.4's
// "matched by element name, first-match wins" XML-fragment rule).
func replaceFirstMatch(root, fragment *model.Node) bool {
	if root == nil || root.IsText {
		return false
	}
	for i, c := range root.Children {
		if c.IsText {
			continue
		}
		if c.Name == fragment.Name {
			root.Children[i] = fragment
			return true
		}
		if replaceFirstMatch(c, fragment) {
			return true
		}
	}
	return false
}

func (s *Store) applyRemoveAsset(cmd *model.AssetCommand) ([]model.Observation, error) {
	asset, ok := s.hashAssetCurrent[cmd.AssetID]
	if !ok {
		return nil, fmt.Errorf("store: @REMOVE_ASSET@ unknown assetId %q", cmd.AssetID)
	}
	return s.removeAsset(asset, cmd.Time), nil
}

func (s *Store) removeAsset(asset *model.Asset, t string) []model.Observation {
	asset.Removed = true
	asset.Time = t

	out := []model.Observation{
		s.recordAlways(model.AssetRemovedID, "AssetRemoved", model.CategoryEvent, model.ScalarValue(asset.AssetID), t),
	}
	if s.lastChangedAssetID == asset.AssetID {
		out = append(out, s.recordAlways(model.AssetChangedID, "AssetChanged", model.CategoryEvent, model.ScalarValue(model.ConditionUnavailable), t))
		s.lastChangedAssetID = ""
	}
	return out
}

func (s *Store) applyRemoveAllAssets(cmd *model.AssetCommand) ([]model.Observation, error) {
	var out []model.Observation
	for _, id := range s.assetCreationOrder {
		asset := s.hashAssetCurrent[id]
		if asset == nil || asset.Removed || asset.AssetType != cmd.AssetType {
			continue
		}
		out = append(out, s.removeAsset(asset, cmd.Time)...)
	}
	return out, nil
}

// GetAsset returns the live current record for an assetId.
func (s *Store) GetAsset(id string) (*model.Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.hashAssetCurrent[id]
	return a, ok
}

// ListAssets returns up to count assets from assetBuffer (all if
// count==0), most recent first, optionally filtered by assetType.
func (s *Store) ListAssets(assetType string, count int) []*model.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Asset
	for n := uint64(0); n < s.assetAssigned && (count == 0 || len(out) < count); n++ {
		seq := s.assetNextSeq - 1 - n
		if seq == 0 {
			break
		}
		a := s.assetRing[(seq-1)%s.assetCapacity]
		if a == nil || a.Sequence != seq {
			continue // evicted
		}
		if assetType != "" && a.AssetType != assetType {
			continue
		}
		out = append(out, a)
	}
	return out
}
