package ast

// MutationKind represents a top-level write operation
type MutationKind string

const (
	MutationCreate MutationKind = "create"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
	MutationUpsert MutationKind = "upsert"
)

// MutationNode is a top-level write request
type MutationNode struct {
	Kind      MutationKind
	Entity    string
	Alias     string
	By        UniqueWhere
	Filter    *Where
	Data      DataInput
	Create    DataInput
	Update    DataInput
	Selection *QueryNode
}

// DataInput is the payload of a create or update
type DataInput struct {
	Columns   map[string]any
	Relations map[string]RelationInput
}

// IsEmpty reports whether nothing is written
func (d DataInput) IsEmpty() bool {
	return len(d.Columns) == 0 && len(d.Relations) == 0
}

// RelationInput holds the nested writes of a relation field
type RelationInput struct {
	Items []RelationItem
	// List is set when the payload was given as a list
	List bool
}

// RelationItem is one nested write; it must name exactly one operation
type RelationItem struct {
	Alias      string
	Operations []Operation
}

// OperationKind names a nested write variant
type OperationKind string

const (
	OperationConnect    OperationKind = "connect"
	OperationCreate     OperationKind = "create"
	OperationUpdate     OperationKind = "update"
	OperationUpsert     OperationKind = "upsert"
	OperationDelete     OperationKind = "delete"
	OperationDisconnect OperationKind = "disconnect"
)

// Operation is a nested write variant
type Operation interface {
	Kind() OperationKind
}

// Connect links an existing row
type Connect struct {
	By UniqueWhere
}

// Create inserts and links a new row
type Create struct {
	Data DataInput
}

// Update modifies a linked row; By is required for to-many relations
type Update struct {
	By   UniqueWhere
	Data DataInput
}

// Upsert updates the linked row if it exists and creates it otherwise
type Upsert struct {
	By     UniqueWhere
	Update DataInput
	Create DataInput
}

// Delete removes a linked row
type Delete struct {
	By UniqueWhere
}

// Disconnect unlinks a row without removing it
type Disconnect struct {
	By UniqueWhere
}

func (Connect) Kind() OperationKind    { return OperationConnect }
func (Create) Kind() OperationKind     { return OperationCreate }
func (Update) Kind() OperationKind     { return OperationUpdate }
func (Upsert) Kind() OperationKind     { return OperationUpsert }
func (Delete) Kind() OperationKind     { return OperationDelete }
func (Disconnect) Kind() OperationKind { return OperationDisconnect }
