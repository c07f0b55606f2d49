package mdadapter

import (
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// CountsKey holds the map[string]int of job counts per status for one conversion.
var CountsKey = parser.NewContextKey()

var statDirectiveRe = regexp.MustCompile(`^{{\s*stat:\s*([a-z]+)\s*}}`)

type statDirectiveParser struct{}

func NewStatDirectiveParser() parser.InlineParser {
	return &statDirectiveParser{}
}

func (s *statDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *statDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := statDirectiveRe.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	block.Advance(len(matches[0]))

	node := &StatDirective{Status: string(matches[1])}
	if counts, ok := pc.Get(CountsKey).(map[string]int); ok {
		node.Count = counts[node.Status]
	}

	return node
}
