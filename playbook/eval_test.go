package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalCondition(t *testing.T) {
	tests := []struct {
		name string
		cond string
		vars map[string]string
		want bool
	}{
		{"empty_condition_is_true", "", nil, true},
		{"equality_true", `var.env == "prod"`, map[string]string{"env": "prod"}, true},
		{"equality_false", `var.env == "prod"`, map[string]string{"env": "dev"}, false},
		{"missing_var_is_empty", `var.env == "prod"`, nil, false},
		{"missing_var_empty_check", `var.env == ""`, nil, true},
		{"negation", `var.env != "prod"`, map[string]string{"env": "dev"}, true},
		{"conjunction", `var.env == "prod" && var.region == "eu"`,
			map[string]string{"env": "prod", "region": "eu"}, true},
		{"disjunction_short", `var.env == "prod" || var.force == "yes"`,
			map[string]string{"force": "yes"}, true},
		{"bool_literal_string", `var.enabled == "true"`, map[string]string{"enabled": "true"}, true},
		{"string_converts_to_bool", `var.enabled`, map[string]string{"enabled": "true"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalCondition(tt.cond, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalCondition_Errors(t *testing.T) {
	_, err := EvalCondition(`var.env ==`, nil)
	require.ErrorIs(t, err, ErrBadExpression)

	// Only the var root is available.
	_, err = EvalCondition(`env.prod`, nil)
	require.ErrorIs(t, err, ErrBadExpression)

	// Empty string does not convert to bool.
	_, err = EvalCondition(`var.enabled`, nil)
	require.ErrorIs(t, err, ErrBadExpression)
}

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{"plain_text", "no placeholders here", nil, "no placeholders here"},
		{"single_var", "Deploy ${var.service}", map[string]string{"service": "api"}, "Deploy api"},
		{"two_vars", "Deploy ${var.service} to ${var.env}",
			map[string]string{"service": "api", "env": "prod"}, "Deploy api to prod"},
		{"missing_var_is_empty", "Deploy ${var.service} to ${var.env}",
			map[string]string{"service": "api"}, "Deploy api to "},
		{"empty_template", "", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderTemplate(tt.tmpl, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderTemplate_BadSyntax(t *testing.T) {
	_, err := RenderTemplate("Deploy ${var.", nil)
	require.ErrorIs(t, err, ErrBadExpression)
}

func TestCheckCondition(t *testing.T) {
	require.NoError(t, CheckCondition(`var.env == "prod"`))
	require.ErrorIs(t, CheckCondition(`var.env ==`), ErrBadExpression)
}
