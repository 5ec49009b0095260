package playbook

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// varRoot is the root name variables are addressed under in conditions
// and templates: `var.env`, `${var.service}`.
const varRoot = "var"

// CheckCondition reports whether the expression parses. It does not
// evaluate; unknown variables are legal (they resolve empty at pour
// time).
func CheckCondition(cond string) error {
	_, diags := hclsyntax.ParseExpression([]byte(cond), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return fmt.Errorf("%w: %s", ErrBadExpression, diags.Error())
	}
	return nil
}

// EvalCondition evaluates a step condition against the variable
// bindings. An empty condition is true. Variables the condition
// references but the bindings omit evaluate as empty strings, so a
// missing variable makes an equality test false rather than failing
// the pour.
func EvalCondition(cond string, vars map[string]string) (bool, error) {
	if cond == "" {
		return true, nil
	}

	expr, diags := hclsyntax.ParseExpression([]byte(cond), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return false, fmt.Errorf("%w: %s", ErrBadExpression, diags.Error())
	}

	val, err := evaluate(expr, vars)
	if err != nil {
		return false, err
	}
	if val.IsNull() {
		return false, nil
	}

	boolVal, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("%w: condition is not boolean: %v", ErrBadExpression, err)
	}
	return boolVal.True(), nil
}

// RenderTemplate interpolates `${var.name}` placeholders in a template
// string. Missing variables render as empty strings.
func RenderTemplate(tmpl string, vars map[string]string) (string, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(tmpl), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return "", fmt.Errorf("%w: %s", ErrBadExpression, diags.Error())
	}

	val, err := evaluate(expr, vars)
	if err != nil {
		return "", err
	}
	if val.IsNull() {
		return "", nil
	}

	strVal, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%w: template is not a string: %v", ErrBadExpression, err)
	}
	return strVal.AsString(), nil
}

// evaluate runs the expression with every binding exposed under the
// var root, padding variables the expression references but the
// bindings lack with empty strings.
func evaluate(expr hcl.Expression, vars map[string]string) (cty.Value, error) {
	attrs := make(map[string]cty.Value, len(vars))
	for k, v := range vars {
		attrs[k] = cty.StringVal(v)
	}

	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		if root != varRoot {
			return cty.NilVal, fmt.Errorf("%w: unknown reference %q (only %q is available)",
				ErrBadExpression, root, varRoot)
		}
		if len(traversal) < 2 {
			continue
		}
		attr, ok := traversal[1].(hcl.TraverseAttr)
		if !ok {
			continue
		}
		if _, bound := attrs[attr.Name]; !bound {
			attrs[attr.Name] = cty.StringVal("")
		}
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			varRoot: cty.ObjectVal(attrs),
		},
	}

	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("%w: %s", ErrBadExpression, diags.Error())
	}
	return val, nil
}
