package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

const exhaustionAnswer = "I was unable to retrieve the required information after multiple attempts."

// retry is the sole path on which lastError is cleared. It either issues a
// corrective route (incrementing the retry counter) or ends the run.
func (e *Engine) retry(ctx context.Context, st *runState, failed string) (phase, string) {
	if st.lastError == nil || st.retryCount >= MaxRetries {
		// Fast-fail: no planner call on this branch.
		st.setFinal(exhaustionAnswer)
		st.history.Append(statex.Turn{
			Role:    statex.RoleRetry,
			Source:  "retry",
			Content: fmt.Sprintf("%v: giving up after %d retries", contractx.ErrExhausted, st.retryCount),
			Err:     true,
		})
		return phaseSynthesizing, ""
	}

	userTask := ""
	if last, ok := st.history.LastUser(); ok {
		userTask = last.Content
	}

	callCtx, cancel := e.callContext(ctx)
	dec, err := e.planner.Analyze(callCtx, contractx.RetryRequest{
		FailedWorker: failed,
		ErrorMessage: st.lastError.Message,
		UserTask:     userTask,
		Workers:      e.Workers(),
	})
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("retry analysis failed, aborting")
		dec = contractx.RetryDecision{
			Action:    contractx.RetryAbort,
			Reasoning: fmt.Sprintf("retry analysis failed: %v", err),
		}
	}

	target := failed
	switch dec.Action {
	case contractx.RetrySame:
	case contractx.RetryDifferent:
		named := strings.TrimSpace(dec.Worker)
		if _, ok := e.workers[named]; !ok {
			log.Warn().Str("worker", named).Msg("retry analysis named unregistered worker, aborting")
			dec = contractx.RetryDecision{
				Action:    contractx.RetryAbort,
				Reasoning: fmt.Sprintf("corrective target %q is not registered", named),
			}
			break
		}
		target = named
	default:
		dec.Action = contractx.RetryAbort
	}

	if dec.Action == contractx.RetryAbort {
		// lastError stays set for diagnostics on the abort path.
		st.setFinal(fmt.Sprintf(
			"An error occurred and could not be recovered automatically: %s", st.lastError.Message))
		st.history.Append(statex.Turn{
			Role:    statex.RoleRetry,
			Source:  "retry",
			Content: "aborting: " + dec.Reasoning,
			Err:     true,
		})
		return phaseSynthesizing, ""
	}

	st.retryCount++
	st.lastError = nil
	log.Info().Str("target", target).Int("retry_count", st.retryCount).Msg("corrective route issued")
	st.history.Append(statex.Turn{
		Role:    statex.RoleRetry,
		Source:  "retry",
		Content: fmt.Sprintf("attempting recovery via %s: %s", target, dec.Reasoning),
	})
	return phaseDispatching, target
}
