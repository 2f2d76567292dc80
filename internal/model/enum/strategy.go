package enum

// Strategy iceberg, micro-price, kelly
type Strategy uint8

const (
	_strategy_beg Strategy = iota
	StrategyIceberg
	StrategyMicroPrice
	StrategyKelly
	_strategy_end
)

func (s Strategy) IsAvailable() bool {
	return s > _strategy_beg && s < _strategy_end
}

func (s Strategy) String() string {
	switch s {
	case StrategyIceberg:
		return "iceberg"
	case StrategyMicroPrice:
		return "micro_price"
	case StrategyKelly:
		return "kelly"
	default:
		return "unknown"
	}
}

func ParseStrategy(s string) Strategy {
	switch s {
	case "iceberg":
		return StrategyIceberg
	case "micro_price":
		return StrategyMicroPrice
	case "kelly":
		return StrategyKelly
	default:
		return _strategy_beg
	}
}
