package narrative

import "time"

const (
	DefaultPhaseEvery     = 6
	DefaultPhaseMaxTokens = 600
	DefaultFinalMaxTokens = 2500
	DefaultSettleDelay    = time.Second
	DefaultResumeDelay    = 500 * time.Millisecond
)
