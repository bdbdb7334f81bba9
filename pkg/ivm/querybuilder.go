package ivm

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// columnExtractor walks a parsed expression tree collecting every bare
// column reference, used by ProjectView to record each output column's
// dependencies on its parent's schema.
type columnExtractor struct {
	columns []string
	seen    map[string]bool
}

func (v *columnExtractor) Enter(n ast.Node) (ast.Node, bool) {
	if col, ok := n.(*ast.ColumnNameExpr); ok {
		name := col.Name.Name.O
		if !v.seen[name] {
			v.seen[name] = true
			v.columns = append(v.columns, name)
		}
	}
	return n, false
}

func (v *columnExtractor) Leave(n ast.Node) (ast.Node, bool) { return n, true }

// ExtractColumns parses expr as a SQL scalar expression (by wrapping it
// in a throwaway SELECT) and returns every distinct column it references.
func ExtractColumns(expr string) ([]string, error) {
	p := parser.New()
	stmtNodes, _, err := p.ParseSQL(fmt.Sprintf("SELECT %s", expr))
	if err != nil {
		return nil, fmt.Errorf("parse expr %q: %w", expr, err)
	}
	if len(stmtNodes) != 1 {
		return nil, fmt.Errorf("parse expr %q: expected one statement", expr)
	}
	sel, ok := stmtNodes[0].(*ast.SelectStmt)
	if !ok || sel.Fields == nil || len(sel.Fields.Fields) == 0 {
		return nil, fmt.Errorf("parse expr %q: not a scalar expression", expr)
	}

	extractor := &columnExtractor{seen: make(map[string]bool)}
	sel.Fields.Fields[0].Expr.Accept(extractor)
	return extractor.columns, nil
}

// ExtractEqualities parses predicate as a WHERE clause and, if it is a pure
// conjunction of column = literal comparisons with no placeholders, returns
// the column->literal pairs and ok=true. Any placeholder, non-equality
// operator, or parse failure yields ok=false, signalling that the caller
// must fall back to the general one-row gateway evaluator.
func ExtractEqualities(predicate string) (map[string]any, bool) {
	if strings.Contains(predicate, "?") {
		// A placeholder means the caller must bind args positionally;
		// evaluating locally without mapping args to AST param order is
		// not attempted here, so fall back to the gateway round trip.
		return nil, false
	}
	p := parser.New()
	stmtNodes, _, err := p.ParseSQL(fmt.Sprintf("SELECT 1 WHERE %s", predicate))
	if err != nil || len(stmtNodes) != 1 {
		return nil, false
	}
	sel, ok := stmtNodes[0].(*ast.SelectStmt)
	if !ok || sel.Where == nil {
		return nil, false
	}
	out := make(map[string]any)
	if !collectEqualities(sel.Where, out) {
		return nil, false
	}
	return out, true
}

func collectEqualities(expr ast.ExprNode, out map[string]any) bool {
	e, ok := expr.(*ast.BinaryOperationExpr)
	if !ok {
		return false
	}
	switch e.Op.String() {
	case "and":
		return collectEqualities(e.L, out) && collectEqualities(e.R, out)
	case "eq":
		col, val, ok := splitColumnLiteral(e.L, e.R)
		if !ok {
			return false
		}
		out[col] = val
		return true
	default:
		return false
	}
}

// splitColumnLiteral recognises "column = literal" or "literal = column" and
// returns the column name and the literal's Go value. A placeholder on
// either side (no ast.ValueExpr with a bound value) fails the match.
func splitColumnLiteral(l, r ast.ExprNode) (string, any, bool) {
	if col, ok := l.(*ast.ColumnNameExpr); ok {
		if lit, ok := asLiteral(r); ok {
			return col.Name.Name.O, lit, true
		}
	}
	if col, ok := r.(*ast.ColumnNameExpr); ok {
		if lit, ok := asLiteral(l); ok {
			return col.Name.Name.O, lit, true
		}
	}
	return "", nil, false
}

func asLiteral(n ast.ExprNode) (any, bool) {
	if v, ok := n.(ast.ValueExpr); ok {
		return v.GetValue(), true
	}
	return nil, false
}
