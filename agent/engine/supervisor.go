package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

const supervisorFailureAnswer = "I encountered an error while processing your query. Please try again."

// supervise asks the planner for the next hop over a bounded window of
// recent turns. A planner fault is terminal here: no internal retry, the
// run moves straight to synthesis with an apologetic answer.
func (e *Engine) supervise(ctx context.Context, st *runState) (phase, string, string) {
	callCtx, cancel := e.callContext(ctx)
	dec, err := e.planner.Route(callCtx, contractx.RouteRequest{
		History: st.history.LastN(e.contextWindow),
		Workers: e.Workers(),
	})
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("supervisor routing failed")
		st.setFinal(supervisorFailureAnswer)
		st.history.Append(statex.Turn{
			Role:    statex.RoleSupervisor,
			Source:  "supervisor",
			Content: fmt.Sprintf("routing failed: %v", err),
			Err:     true,
		})
		return phaseSynthesizing, "", ""
	}

	next := strings.TrimSpace(dec.NextWorker)
	if qc := strings.TrimSpace(dec.QueryClass); qc != "" {
		st.queryClass = qc
	}

	if strings.EqualFold(next, contractx.RouteFinish) {
		st.history.Append(statex.Turn{
			Role:    statex.RoleSupervisor,
			Source:  "supervisor",
			Content: "finishing: " + dec.Reasoning,
		})
		return phaseSynthesizing, "", ""
	}

	if _, ok := e.workers[next]; !ok {
		// An out-of-registry target is treated as FINISH.
		log.Warn().Str("next_worker", next).Msg("planner chose unregistered worker, finishing")
		st.history.Append(statex.Turn{
			Role:    statex.RoleSupervisor,
			Source:  "supervisor",
			Content: fmt.Sprintf("unknown worker %q requested, finishing instead", next),
			Err:     true,
		})
		return phaseSynthesizing, "", ""
	}

	taskText := strings.TrimSpace(dec.TaskDescription)
	if taskText == "" {
		if last, ok := st.history.LastUser(); ok {
			taskText = last.Content
		}
	}

	log.Info().Str("next_worker", next).Str("reasoning", dec.Reasoning).Msg("supervisor routed")
	st.history.Append(statex.Turn{
		Role:    statex.RoleSupervisor,
		Source:  "supervisor",
		Content: fmt.Sprintf("routing to %s: %s", next, dec.Reasoning),
	})
	return phaseDispatching, next, taskText
}
