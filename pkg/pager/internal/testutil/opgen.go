package testutil

import (
	"strings"

	"github.com/calvinalkan/docpager/pkg/pager"
)

// OpKind names one operation against a pager.
type OpKind int

// Operation kinds.
const (
	OpCreate OpKind = iota
	OpUpdate
	OpRead
	OpQuery
	OpReopen
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpRead:
		return "read"
	case OpQuery:
		return "query"
	case OpReopen:
		return "reopen"
	default:
		return "unknown"
	}
}

// Op is one generated operation. Which fields are used depends on Kind.
type Op struct {
	Kind OpKind

	// Pick selects an existing document for update and read, modulo the
	// number of written documents.
	Pick int

	// Set and Unset change document fields on create and update.
	Set   map[string]any
	Unset []string

	// Where, Match, Offset and Limit describe a query.
	Where  map[string]any
	Match  pager.MatchMode
	Offset int
	Limit  int
}

// OpGenConfig sets the percentage of each operation kind. Whatever the
// rates leave over becomes reads.
type OpGenConfig struct {
	CreateRate int
	UpdateRate int
	QueryRate  int
	ReopenRate int

	// BlobRate is the percentage of set values that are large enough to
	// need several content pages.
	BlobRate int
}

// DefaultOpGenConfig returns a mix that grows, rewrites and queries a
// small set of documents.
func DefaultOpGenConfig() OpGenConfig {
	return OpGenConfig{
		CreateRate: 25,
		UpdateRate: 30,
		QueryRate:  25,
		ReopenRate: 5,
		BlobRate:   10,
	}
}

// Fields is the closed set of field names generated ops use. A small set
// makes queries hit.
var Fields = []string{"a", "b", "c", "likes"}

// OpGenerator derives operations from a byte stream.
type OpGenerator struct {
	stream *ByteStream
	config OpGenConfig
}

// NewOpGenerator returns a generator over fuzzBytes.
func NewOpGenerator(fuzzBytes []byte, cfg OpGenConfig) *OpGenerator {
	return &OpGenerator{stream: NewByteStream(fuzzBytes), config: cfg}
}

// HasMore reports whether more operations can be generated.
func (g *OpGenerator) HasMore() bool {
	return g.stream.HasMore()
}

// Next returns the next operation.
func (g *OpGenerator) Next() Op {
	roll := g.stream.Intn(100)
	cfg := g.config

	switch {
	case roll < cfg.CreateRate:
		return Op{Kind: OpCreate, Set: g.fields(1 + g.stream.Intn(3))}
	case roll < cfg.CreateRate+cfg.UpdateRate:
		op := Op{Kind: OpUpdate, Pick: g.stream.Intn(256), Set: g.fields(g.stream.Intn(3))}
		if g.stream.Bool() {
			op.Unset = []string{g.field()}
		}

		return op
	case roll < cfg.CreateRate+cfg.UpdateRate+cfg.QueryRate:
		op := Op{
			Kind:   OpQuery,
			Where:  g.fields(1 + g.stream.Intn(2)),
			Offset: g.stream.Intn(3),
			Limit:  g.stream.Intn(3),
		}
		if g.stream.Bool() {
			op.Match = pager.MatchAny
		}

		return op
	case roll < cfg.CreateRate+cfg.UpdateRate+cfg.QueryRate+cfg.ReopenRate:
		return Op{Kind: OpReopen}
	default:
		return Op{Kind: OpRead, Pick: g.stream.Intn(256)}
	}
}

func (g *OpGenerator) fields(n int) map[string]any {
	out := make(map[string]any, n)
	for range n {
		out[g.field()] = g.value()
	}

	return out
}

func (g *OpGenerator) field() string {
	return Fields[g.stream.Intn(len(Fields))]
}

// value draws from a handful of values per type so equal values recur.
func (g *OpGenerator) value() any {
	if g.stream.Percent(g.config.BlobRate) {
		n := pager.PageSize + g.stream.Intn(3)*pager.PageSize/2

		return strings.Repeat(string(rune('a'+g.stream.Intn(3))), n)
	}

	switch g.stream.Intn(6) {
	case 0:
		return nil
	case 1:
		return g.stream.Bool()
	case 2:
		return int64(g.stream.Intn(4))
	case 3:
		return uint64(g.stream.Intn(4))
	case 4:
		return []string{"cats", "dogs", "birds"}[g.stream.Intn(3)]
	default:
		return []byte{g.stream.Byte() % 4}
	}
}
