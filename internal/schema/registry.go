package schema

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/micheletedeschi/mtconnect-agent/internal/model"
)

// node is one step of a dataitem's ancestor chain, used to resolve
// the XPath-like dialect from spec.md §4.2.
type node struct {
	names []string
	attrs map[string]string
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

type indexedItem struct {
	item  *DataItem
	uuid  string
	chain []node
}

// Registry indexes device descriptions for name/id lookup and
// XPath-like path resolution (spec.md §4.2).
type Registry struct {
	mu sync.RWMutex

	order      []string // device uuids, insertion order
	devices    map[string]*Device
	nameToUUID map[string]string

	// byName[uuid][dataitemName] -> *DataItem, case-sensitive (rule 3).
	byName map[string]map[string]*DataItem
	// byID[id] -> *DataItem, and its owning device uuid.
	byID       map[string]*DataItem
	idToDevice map[string]string

	// items holds every dataitem's indexed chain, in discovery order
	// (depth-first over devices in insertion order, then over
	// components in schema order) — the tie-break spec.md §4.2 names.
	items []*indexedItem
}

func NewRegistry() *Registry {
	return &Registry{
		devices:    make(map[string]*Device),
		nameToUUID: make(map[string]string),
		byName:     make(map[string]map[string]*DataItem),
		byID:       make(map[string]*DataItem),
		idToDevice: make(map[string]string),
	}
}

// CategoryContainerName maps a dataitem category to the MTConnect
// stream/probe container element name that wraps it.
func CategoryContainerName(category string) string {
	switch category {
	case model.CategorySample:
		return "Samples"
	case model.CategoryEvent:
		return "Events"
	case model.CategoryCondition:
		return "Condition"
	default:
		return ""
	}
}

func dataItemNode(di *DataItem) node {
	names := []string{"DataItem"}
	if c := CategoryContainerName(di.Category); c != "" {
		names = append(names, c)
	}
	if di.Type != "" && !containsName(names, di.Type) {
		names = append(names, di.Type)
	}
	return node{
		names: names,
		attrs: map[string]string{
			"id":       di.ID,
			"name":     di.Name,
			"type":     di.Type,
			"category": di.Category,
			"subType":  di.SubType,
		},
	}
}

func componentNode(c *Component) node {
	return node{
		names: []string{c.ComponentType},
		attrs: map[string]string{
			"id":   c.ID,
			"name": c.Name,
			"type": c.ComponentType,
		},
	}
}

func deviceNode(d *Device) node {
	return node{
		names: []string{"Device"},
		attrs: map[string]string{
			"uuid": d.UUID,
			"name": d.Name,
		},
	}
}

// InsertSchema inserts or replaces (idempotent by UUID) a device
// description. It is the only schema mutation operation; spec.md's
// Non-goals forbid runtime mutation beyond initial load, so callers
// are expected to call this only during agent startup.
func (r *Registry) InsertSchema(dev *Device) error {
	if dev.UUID == "" {
		return fmt.Errorf("schema: device UUID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[dev.UUID]; exists {
		r.removeDeviceLocked(dev.UUID)
	} else {
		r.order = append(r.order, dev.UUID)
	}

	r.devices[dev.UUID] = dev
	r.nameToUUID[dev.Name] = dev.UUID
	r.byName[dev.UUID] = make(map[string]*DataItem)

	dn := deviceNode(dev)
	r.indexDataItems(dev, dn, dev.DataItems, []node{dn})
	for _, c := range dev.Components {
		r.indexComponent(dev, c, []node{dn})
	}
	return nil
}

func (r *Registry) indexComponent(dev *Device, c *Component, ancestors []node) {
	chain := append(append([]node{}, ancestors...), componentNode(c))
	r.indexDataItems(dev, chain[len(chain)-1], c.DataItems, chain)
	for _, child := range c.Components {
		r.indexComponent(dev, child, chain)
	}
}

func (r *Registry) indexDataItems(dev *Device, _ node, items []*DataItem, ancestors []node) {
	for _, di := range items {
		chain := append(append([]node{}, ancestors...), dataItemNode(di))
		r.byName[dev.UUID][di.Name] = di
		r.byID[di.ID] = di
		r.idToDevice[di.ID] = dev.UUID
		r.items = append(r.items, &indexedItem{item: di, uuid: dev.UUID, chain: chain})
	}
}

// removeDeviceLocked drops a previously-inserted device's index
// entries ahead of a reinsert. Caller holds r.mu.
func (r *Registry) removeDeviceLocked(uuid string) {
	old := r.devices[uuid]
	if old == nil {
		return
	}
	delete(r.nameToUUID, old.Name)
	delete(r.byName, uuid)

	filtered := r.items[:0:0]
	for _, it := range r.items {
		if it.uuid == uuid {
			delete(r.byID, it.item.ID)
			delete(r.idToDevice, it.item.ID)
			continue
		}
		filtered = append(filtered, it)
	}
	r.items = filtered
}

// GetDeviceUuid returns the uuid registered for a device name.
func (r *Registry) GetDeviceUuid(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	uuid, ok := r.nameToUUID[name]
	return uuid, ok
}

// GetAllDeviceUuids returns every registered device uuid, insertion order.
func (r *Registry) GetAllDeviceUuids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// GetDevice returns the device tree for a uuid, used by /probe.
func (r *Registry) GetDevice(uuid string) (*Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[uuid]
	return d, ok
}

// Resolve looks up a dataitem by its short SHDR name, scoped to one
// device (spec.md §4.1 rule 3, and §4.3 step 1). Resolution is
// case-sensitive.
func (r *Registry) Resolve(uuid, name string) (model.DataItemKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.byName[uuid]
	if !ok {
		return model.DataItemKind{}, false
	}
	di, ok := byName[name]
	if !ok {
		return model.DataItemKind{}, false
	}
	return di.Kind(), true
}

// DataItemByID returns a dataitem's schema attributes, used by the
// serializer to decide element tags and its owning device uuid.
func (r *Registry) DataItemByID(id string) (*DataItem, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	di, ok := r.byID[id]
	if !ok {
		return nil, "", false
	}
	return di, r.idToDevice[id], true
}

var segmentRe = regexp.MustCompile(`^([A-Za-z_][\w-]*)(\[@([A-Za-z]+)="([^"]*)"\])?$`)

type pathSegment struct {
	name     string
	hasAttr  bool
	attrName string
	attrVal  string
}

func parsePath(path string) ([]pathSegment, error) {
	var segs []pathSegment
	for _, raw := range strings.Split(path, "//") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		m := segmentRe.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("INVALID_XPATH: %q", raw)
		}
		segs = append(segs, pathSegment{name: m[1], hasAttr: m[3] != "", attrName: m[3], attrVal: m[4]})
	}
	return segs, nil
}

func matchesSegment(chain []node, seg pathSegment) bool {
	for _, n := range chain {
		if !containsName(n.names, seg.name) {
			continue
		}
		if !seg.hasAttr {
			return true
		}
		if v, ok := n.attrs[seg.attrName]; ok && v == seg.attrVal {
			return true
		}
	}
	return false
}

// ResolvePath resolves an XPath-like query scoped to the given
// devices (all devices if uuids is empty) into the matching dataitem
// ids, in discovery order.
func (r *Registry) ResolvePath(path string, uuids []string) ([]string, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var scope map[string]bool
	if len(uuids) > 0 {
		scope = make(map[string]bool, len(uuids))
		for _, u := range uuids {
			scope[u] = true
		}
	}

	var ids []string
	for _, it := range r.items {
		if scope != nil && !scope[it.uuid] {
			continue
		}
		matched := true
		for _, seg := range segs {
			if !matchesSegment(it.chain, seg) {
				matched = false
				break
			}
		}
		if matched {
			ids = append(ids, it.item.ID)
		}
	}
	return ids, nil
}

// PathValidation reports whether a path resolves to at least one dataitem.
func (r *Registry) PathValidation(path string, uuids []string) (bool, error) {
	ids, err := r.ResolvePath(path, uuids)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}
