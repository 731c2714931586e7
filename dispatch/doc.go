// Package dispatch resolves intents to handlers and runs them under the
// supervisor's timeout and retry policy.
//
// Dispatch never returns an error. Every failure, whether a missing handler,
// a handler error, a panic, a timeout or an exhausted retry budget, is
// converted into a core.Result whose status is "error" and whose message
// describes the cause. Every result carries the intent id and intent type of
// the request that produced it, so the caller can correlate it.
//
// Hooks run synchronously around each dispatch:
//
//	d := dispatch.New(reg, sup, func(o *dispatch.Options) {
//	    o.Timeout = 5 * time.Second
//	})
//	d.Hooks().Register(dispatch.NewFunctionHook(dispatch.HookBeforeDispatch,
//	    func(ctx context.Context, hc *dispatch.HookContext) error {
//	        if hc.Intent.String("tenant") == "" {
//	            return errors.New("tenant required")
//	        }
//	        return nil
//	    }))
package dispatch
