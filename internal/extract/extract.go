package extract

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// Result holds the outcome of analyzing a single cell's source.
type Result struct {
	// Defs are the names the cell binds at top level, in source order.
	Defs []string
	// Refs are the names the cell reads that are not locally bound before the
	// point of use, in first-use order.
	Refs []string
	// DynamicDefs is true when the cell calls bind() with a name that is not
	// statically known. Such a cell may own any otherwise unowned name.
	DynamicDefs bool
	// Setup is true when the cell carries a setup block and must order before
	// every cell that reads its bindings.
	Setup bool
	// Body is the compiled form of the source, reused by the runner so the
	// cell is not parsed twice.
	Body *hclsyntax.Body
}

// ParseError indicates that a cell's source is not syntactically valid and
// the cell cannot be registered into the graph at all.
type ParseError struct {
	Filename string
	Diags    hcl.Diagnostics
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Filename, e.Diags.Error())
}

// Extractor is the capability the kernel consumes to turn cell source text
// into defs/refs sets. The HCL implementation below is the default; tests may
// substitute their own.
type Extractor interface {
	Extract(source []byte, filename string) (Result, error)
}

// HCL is the hclsyntax-backed Extractor.
type HCL struct{}

// New returns the default HCL extractor.
func New() *HCL {
	return &HCL{}
}

// BindFuncName is the builtin whose static string calls widen a cell's defs.
const BindFuncName = "bind"

// SetupBlockName is the block type marking the distinguished always-first cell.
const SetupBlockName = "setup"

// Extract parses source and computes the cell's defs and refs. It is a pure
// function of the source text and fails with *ParseError on invalid syntax.
//
// Names bound only inside nested expression scopes (for-expression key/value
// variables) never appear in Refs: hclsyntax excludes child-scope locals from
// Expression.Variables. A name read by an attribute that appears before the
// attribute binding it is reported as a ref, not a def, so Defs and Refs stay
// disjoint under read-before-write semantics.
func (x *HCL) Extract(source []byte, filename string) (Result, error) {
	file, diags := hclsyntax.ParseConfig(source, filename, hcl.Pos{Line: 1, Column: 1, Byte: 0})
	if diags.HasErrors() {
		return Result{}, &ParseError{Filename: filename, Diags: diags}
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		// ParseConfig always yields an hclsyntax body; anything else is a
		// programmer error.
		return Result{}, fmt.Errorf("unexpected body type %T from parser", file.Body)
	}

	res := Result{Body: body}

	attrs := OrderedAttributes(body)
	for _, block := range body.Blocks {
		if block.Type != SetupBlockName {
			return Result{}, &ParseError{Filename: filename, Diags: hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Unsupported block",
				Detail:   fmt.Sprintf("Block type %q is not allowed in a cell body; only attributes and a setup block are.", block.Type),
				Subject:  block.DefRange().Ptr(),
			}}}
		}
		res.Setup = true
		attrs = append(attrs, OrderedAttributes(block.Body)...)
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})

	bound := make(map[string]struct{}, len(attrs))
	referenced := make(map[string]struct{})
	var defs, refs []string

	for _, attr := range attrs {
		for _, traversal := range attr.Expr.Variables() {
			root := traversal.RootName()
			if _, local := bound[root]; local {
				continue // Local read of a name bound earlier in this cell.
			}
			if _, seen := referenced[root]; !seen {
				referenced[root] = struct{}{}
				refs = append(refs, root)
			}
		}

		widened, dynamic := bindTargets(attr.Expr)
		for _, name := range widened {
			if _, dup := bound[name]; !dup {
				bound[name] = struct{}{}
				defs = append(defs, name)
			}
		}
		if dynamic {
			res.DynamicDefs = true
		}

		if _, dup := bound[attr.Name]; !dup {
			bound[attr.Name] = struct{}{}
			defs = append(defs, attr.Name)
		}
	}

	// A name referenced before its local binding stays a ref; drop it from
	// defs so the two sets are disjoint and ownership falls to the upstream
	// definer.
	res.Defs = make([]string, 0, len(defs))
	for _, name := range defs {
		if _, wasRef := referenced[name]; !wasRef {
			res.Defs = append(res.Defs, name)
		}
	}
	res.Refs = refs
	return res, nil
}

// OrderedAttributes returns a body's attributes sorted by source position.
// The runner evaluates attributes in exactly this order.
func OrderedAttributes(body *hclsyntax.Body) []*hclsyntax.Attribute {
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs
}

// bindVisitor collects bind() targets while walking an expression tree.
type bindVisitor struct {
	names   []string
	dynamic bool
}

// Enter implements hclsyntax.Walker.
func (v *bindVisitor) Enter(node hclsyntax.Node) hcl.Diagnostics {
	call, ok := node.(*hclsyntax.FunctionCallExpr)
	if !ok || call.Name != BindFuncName || len(call.Args) == 0 {
		return nil
	}
	name, known := staticString(call.Args[0])
	if !known {
		// The bound name is only known at runtime. Widening to "could be
		// anything" keeps pruning sound; false positives are safe here.
		v.dynamic = true
		return nil
	}
	v.names = append(v.names, name)
	return nil
}

// Exit implements hclsyntax.Walker.
func (v *bindVisitor) Exit(node hclsyntax.Node) hcl.Diagnostics {
	return nil
}

// bindTargets walks expr for bind() calls and returns any statically known
// target names, plus whether a dynamic (non-static) target was seen.
func bindTargets(expr hclsyntax.Expression) ([]string, bool) {
	v := &bindVisitor{}
	hclsyntax.Walk(expr, v)
	return v.names, v.dynamic
}

// staticString evaluates expr with no variables or functions in scope and
// reports its value when it is a known string.
func staticString(expr hclsyntax.Expression) (string, bool) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() || !val.IsKnown() || val.IsNull() || val.Type() != cty.String {
		return "", false
	}
	return val.AsString(), true
}
