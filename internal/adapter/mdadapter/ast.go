package mdadapter

import (
	"strconv"

	"github.com/yuin/goldmark/ast"
)

var KindStatDirective = ast.NewNodeKind("StatDirective")

// StatDirective is an inline {{ stat: <status> }} placeholder replaced by the job count.
type StatDirective struct {
	ast.BaseInline
	Status string
	Count  int
}

func (n *StatDirective) Kind() ast.NodeKind {
	return KindStatDirective
}

func (n *StatDirective) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Status": n.Status,
		"Count":  strconv.Itoa(n.Count),
	}, nil)
}
