package pipeline

import (
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoice-processor/constants"
	"github.com/joseph-ayodele/invoice-processor/internal/entity"
)

// Report summarizes one run.
type Report struct {
	RunID     string                         `json:"run_id"`
	Fetched   int                            `json:"fetched"`
	Processed int                            `json:"processed"`
	Skipped   int                            `json:"skipped"`
	Failed    int                            `json:"failed"`
	ByState   map[constants.MessageState]int `json:"by_state"`
	Outcomes  []entity.ProcessingOutcome     `json:"outcomes"`
	Elapsed   time.Duration                  `json:"elapsed"`
}

func (r *Report) add(oc entity.ProcessingOutcome) {
	switch oc.Kind {
	case constants.OutcomeProcessed:
		r.Processed++
	case constants.OutcomeSkipped:
		r.Skipped++
	case constants.OutcomeFailed:
		r.Failed++
	}
	if r.ByState == nil {
		r.ByState = make(map[constants.MessageState]int)
	}
	r.ByState[oc.State]++
	r.Outcomes = append(r.Outcomes, oc)
}

// Unfinished counts fetched messages that never reached a terminal state.
func (r Report) Unfinished() int {
	return r.Fetched - len(r.Outcomes)
}

// Log writes the run summary line.
func (r Report) Log(log *slog.Logger) {
	log.Info("pipeline.run.done",
		"fetched", r.Fetched,
		"processed", r.Processed,
		"skipped", r.Skipped,
		"failed", r.Failed,
		"unfinished", r.Unfinished(),
		"elapsed_ms", r.Elapsed.Milliseconds(),
	)
}
