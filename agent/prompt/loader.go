package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/retry.txt
	retryRaw string

	//go:embed template/synthesizer.txt
	synthesizerRaw string

	//go:embed template/sql_worker.txt
	sqlWorkerRaw string

	//go:embed template/vector_worker.txt
	vectorWorkerRaw string
)

// Set holds loaded prompt content.
type Set struct {
	Supervisor   string
	Retry        string
	Synthesizer  string
	SQLWorker    string
	VectorWorker string
}

// LoadSet returns the embedded prompts with surrounding whitespace trimmed.
func LoadSet() Set {
	return Set{
		Supervisor:   strings.TrimSpace(supervisorRaw),
		Retry:        strings.TrimSpace(retryRaw),
		Synthesizer:  strings.TrimSpace(synthesizerRaw),
		SQLWorker:    strings.TrimSpace(sqlWorkerRaw),
		VectorWorker: strings.TrimSpace(vectorWorkerRaw),
	}
}
