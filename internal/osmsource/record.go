// Package osmsource reads OpenStreetMap extracts as re-playable streams of
// typed records. Every pass of the extraction pipeline opens its own scanner.
package osmsource

import "context"

// Record is one of *Node, *Way, or *Relation.
type Record interface {
	isRecord()
}

// Node is a point record.
type Node struct {
	ID   int64
	Lat  float64
	Lon  float64
	Tags map[string]string
}

// Way is an ordered list of node references.
type Way struct {
	ID    int64
	Nodes []int64
	Tags  map[string]string
}

// MemberType identifies the kind of record a relation member points at.
type MemberType string

// Relation member types.
const (
	MemberNode     MemberType = "node"
	MemberWay      MemberType = "way"
	MemberRelation MemberType = "relation"
)

// Member is one entry of a relation.
type Member struct {
	Type MemberType
	Ref  int64
	Role string
}

// Relation groups members with roles.
type Relation struct {
	ID      int64
	Members []Member
	Tags    map[string]string
}

func (*Node) isRecord()     {}
func (*Way) isRecord()      {}
func (*Relation) isRecord() {}

// Filter selects which record kinds a scanner yields.
type Filter struct {
	Nodes     bool
	Ways      bool
	Relations bool
}

// All yields every record kind.
var All = Filter{Nodes: true, Ways: true, Relations: true}

// Scanner iterates over records. It is single-use; open a new one per pass.
type Scanner interface {
	Scan() bool
	Record() Record
	Err() error
	Close() error
}

// Source opens independent scanners over the same underlying data.
type Source interface {
	Open(ctx context.Context, f Filter) (Scanner, error)
}

func (f Filter) accepts(r Record) bool {
	switch r.(type) {
	case *Node:
		return f.Nodes
	case *Way:
		return f.Ways
	case *Relation:
		return f.Relations
	}
	return false
}
