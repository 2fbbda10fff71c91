package logfields

import "go.uber.org/zap"

func Rule(name string) zap.Field {
	return zap.String("rule", name)
}

func RuleSetVersion(val string) zap.Field {
	return zap.String("ruleset_version", val)
}

func Action(kind string) zap.Field {
	return zap.String("action", kind)
}

func ActionOutcome(val string) zap.Field {
	return zap.String("action_outcome", val)
}

func QueueEntryID(val string) zap.Field {
	return zap.String("queue.entry_id", val)
}

func QueueAttempt(val int) zap.Field {
	return zap.Int("queue.attempt", val)
}

func QueueState(val string) zap.Field {
	return zap.String("queue.state", val)
}

func Reason(val string) zap.Field {
	return zap.String("reason", val)
}
