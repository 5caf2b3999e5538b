package schema

import "github.com/micheletedeschi/mtconnect-agent/internal/model"

// Device, Component and DataItem form the tree indexed by Registry.
// They are created at schema insert time and never mutated afterward
// (spec.md §3's Lifecycle section).

type DataItem struct {
	ID             string
	Name           string
	Type           string
	Category       string
	SubType        string
	Representation string
}

func (d *DataItem) Kind() model.DataItemKind {
	return model.DataItemKind{
		ID:             d.ID,
		Category:       d.Category,
		Type:           d.Type,
		SubType:        d.SubType,
		Representation: d.Representation,
	}
}

type Component struct {
	ID            string
	ComponentType string
	Name          string
	Components    []*Component
	DataItems     []*DataItem
}

type Device struct {
	UUID       string
	Name       string
	Components []*Component
	DataItems  []*DataItem
}
