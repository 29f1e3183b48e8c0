package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

// synthesize produces the final answer. It is idempotent: when an earlier
// terminal branch already set the answer, nothing is called or appended.
// A synthesis fault falls back to a deterministic digest of worker output
// so the answer is never left unset.
func (e *Engine) synthesize(ctx context.Context, st *runState) {
	if st.finalAns != "" {
		return
	}

	userTask := ""
	if first, ok := st.history.First(); ok {
		userTask = first.Content
	}

	callCtx, cancel := e.callContext(ctx)
	answer, err := e.planner.Compose(callCtx, contractx.ComposeRequest{
		History:  st.history.LastN(e.contextWindow),
		UserTask: userTask,
	})
	cancel()
	if err != nil || strings.TrimSpace(answer) == "" {
		log.Error().Err(err).Msg("synthesis failed, falling back to gathered output")
		st.setFinal(fallbackAnswer(st, err))
		return
	}

	st.setFinal(answer)
	st.history.Append(statex.Turn{
		Role:    statex.RoleSynthesizer,
		Source:  "synthesizer",
		Content: st.finalAns,
	})
}

func fallbackAnswer(st *runState, cause error) string {
	var b strings.Builder
	b.WriteString("I gathered information but could not compose a final summary")
	if cause != nil {
		fmt.Fprintf(&b, " (%v)", cause)
	}
	b.WriteString(".")

	gathered := make([]string, 0, 4)
	for _, t := range st.history.Turns() {
		if t.Role == statex.RoleWorker && !t.Err {
			gathered = append(gathered, fmt.Sprintf("[%s] %s", t.Source, t.Content))
		}
	}
	if len(gathered) == 0 {
		b.WriteString(" No worker output was collected.")
		return b.String()
	}
	b.WriteString(" Here is what was collected:\n")
	b.WriteString(strings.Join(gathered, "\n"))
	return b.String()
}
