package source

// ErrorPolicy governs how individual file-level failures during bulk
// iteration are handled. Retries and fallback happen first; the policy
// only sees failures that survived both.
type ErrorPolicy string

const (
	// PolicyRaise aborts the stream on the first failure.
	PolicyRaise ErrorPolicy = "raise"
	// PolicyWarn logs each failure and continues without the failed unit.
	PolicyWarn ErrorPolicy = "warn"
	// PolicySkip continues without the failed unit, silently.
	PolicySkip ErrorPolicy = "skip"
)

// Signal classifies a failure for the fallback/error-policy decision.
type Signal string

const (
	SignalRateLimit          Signal = "rate_limit"
	SignalAPIError           Signal = "api_error"
	SignalTransientExhausted Signal = "transient_exhausted"
	SignalSecurity           Signal = "security"
	SignalParseError         Signal = "parse_error"
)

// Action is the decided handling for a failure.
type Action string

const (
	// ActionFallback retries the whole logical request against the
	// secondary source.
	ActionFallback Action = "fallback"
	// ActionAbort stops the stream and surfaces the error.
	ActionAbort Action = "abort"
	// ActionWarnContinue logs the failure and continues.
	ActionWarnContinue Action = "warn_continue"
	// ActionSkipContinue continues without logging.
	ActionSkipContinue Action = "skip_continue"
)

// Decide maps a failure signal to an action. The full table:
//
//	security             -> abort, unconditionally
//	rate_limit/api_error -> fallback when enabled and configured,
//	                        otherwise per policy
//	transient_exhausted  -> per policy (retries already happened)
//	parse_error          -> per policy (fallback cannot fix bad bytes)
//
// Per policy means raise -> abort, warn -> warn_continue,
// skip -> skip_continue.
func Decide(sig Signal, fallbackEnabled, secondaryConfigured bool, policy ErrorPolicy) Action {
	if sig == SignalSecurity {
		return ActionAbort
	}

	if (sig == SignalRateLimit || sig == SignalAPIError) && fallbackEnabled && secondaryConfigured {
		return ActionFallback
	}

	switch policy {
	case PolicyWarn:
		return ActionWarnContinue
	case PolicySkip:
		return ActionSkipContinue
	default:
		return ActionAbort
	}
}
