package results

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// FormatText writes a line-oriented rendering of one year:
//
//	2012 event birth attempted=3 succeeded=2
//	2012 soft_failure "no vacant job" 1
//	2012 summary persons 120
func FormatText(w io.Writer, r YearResult) error {
	for _, t := range r.Events {
		if _, err := fmt.Fprintf(w, "%d event %s attempted=%d succeeded=%d\n", r.Year, t.Kind, t.Attempted, t.Succeeded); err != nil {
			return err
		}
	}
	for _, n := range r.SoftFailures {
		if _, err := fmt.Fprintf(w, "%d soft_failure %s %d\n", r.Year, strconv.Quote(n.Name), n.Value); err != nil {
			return err
		}
	}
	for _, n := range r.Summaries {
		if _, err := fmt.Fprintf(w, "%d summary %s %d\n", r.Year, n.Name, n.Value); err != nil {
			return err
		}
	}
	return nil
}

type jsonTally struct {
	Kind      string `json:"kind"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
}

type jsonNamed struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type jsonYear struct {
	RunID        string      `json:"run_id,omitempty"`
	Year         int         `json:"year"`
	Events       []jsonTally `json:"events"`
	SoftFailures []jsonNamed `json:"soft_failures"`
	Summaries    []jsonNamed `json:"summaries"`
}

// MarshalJSON renders kinds by name and keeps every list non-null.
func (r YearResult) MarshalJSON() ([]byte, error) {
	out := jsonYear{
		RunID:        r.RunID,
		Year:         r.Year,
		Events:       make([]jsonTally, 0, len(r.Events)),
		SoftFailures: make([]jsonNamed, 0, len(r.SoftFailures)),
		Summaries:    make([]jsonNamed, 0, len(r.Summaries)),
	}
	for _, t := range r.Events {
		out.Events = append(out.Events, jsonTally{Kind: t.Kind.String(), Attempted: t.Attempted, Succeeded: t.Succeeded})
	}
	for _, n := range r.SoftFailures {
		out.SoftFailures = append(out.SoftFailures, jsonNamed(n))
	}
	for _, n := range r.Summaries {
		out.Summaries = append(out.Summaries, jsonNamed(n))
	}
	return json.Marshal(out)
}
