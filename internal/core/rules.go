package core

import "hadilab/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in commit-time
// checks. A commit that leaves a hypothesis outside the lifecycle table, or
// moves it without a ledger row, is refused.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(LifecycleStateRule())
	engine.Register(TransitionLedgerRule())
	return engine
}
