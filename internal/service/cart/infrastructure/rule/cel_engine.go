// internal/service/cart/infrastructure/rule/cel_engine.go
package rule

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELRuleEngine 是 domain.RuleEngine 接口的 cel-go 实现。
// 限购规则以 CEL 表达式的形式放在配置里，运维可以在不发版的
// 情况下调整活动期间的限购策略，例如：
//
//	quantity >= 1 && lineQuantity <= 2 && productId.startsWith("SK-")
//
// 可用变量: productId (string), quantity (int), lineQuantity (int)。
type CELRuleEngine struct {
	program cel.Program
}

// NewCELRuleEngine 编译规则表达式。表达式必须是布尔类型。
func NewCELRuleEngine(expression string) (*CELRuleEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("productId", cel.StringType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("lineQuantity", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cel environment")
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "invalid purchase limit rule %q", expression)
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.Errorf("purchase limit rule %q must evaluate to bool", expression)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build cel program")
	}
	return &CELRuleEngine{program: program}, nil
}

// Allow 评估一次限购检查。
func (e *CELRuleEngine) Allow(fact map[string]interface{}) (bool, error) {
	out, _, err := e.program.Eval(fact)
	if err != nil {
		return false, errors.Wrap(err, "rule evaluation failed")
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("unexpected result type from rule: %T", out.Value())
	}
	return allowed, nil
}
