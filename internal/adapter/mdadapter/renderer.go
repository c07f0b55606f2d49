package mdadapter

import (
	"fmt"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

type statDirectiveRenderer struct{}

func NewStatDirectiveRenderer() renderer.NodeRenderer {
	return &statDirectiveRenderer{}
}

func (r *statDirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindStatDirective, r.renderStatDirective)
}

func (r *statDirectiveRenderer) renderStatDirective(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	directive, ok := n.(*StatDirective)
	if !ok {
		return ast.WalkStop, fmt.Errorf("unexpected node %T, expected *StatDirective", n)
	}

	fmt.Fprintf(w, `<span class="stat" data-status="%s">%d</span>`, util.EscapeHTML([]byte(directive.Status)), directive.Count)

	return ast.WalkContinue, nil
}
