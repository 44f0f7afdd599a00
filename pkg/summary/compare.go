package summary

// Comparison relates this run's failures to the previous run's.
type Comparison struct {
	PreviousStatus string   `json:"previous_status"`
	NewFailures    []string `json:"new_failures"`
	StillFailing   []string `json:"still_failing"`
	Recovered      []string `json:"recovered"`
}

// HasChanges reports whether the set of failing tests changed.
func (c *Comparison) HasChanges() bool {
	return len(c.NewFailures) > 0 || len(c.Recovered) > 0
}

// Compare diffs the current failures against a previous status. It returns
// nil when there is no previous run. Ordering follows the current failures
// for NewFailures and StillFailing, and the previous list for Recovered.
func Compare(prev *LastRunStatus, s *RunSummary) *Comparison {
	if prev == nil {
		return nil
	}

	c := &Comparison{
		PreviousStatus: prev.Status,
		NewFailures:    []string{},
		StillFailing:   []string{},
		Recovered:      []string{},
	}

	previous := make(map[string]struct{}, len(prev.FailedTests))
	for _, id := range prev.FailedTests {
		previous[id] = struct{}{}
	}

	current := make(map[string]struct{})

	if s != nil {
		for _, id := range s.FailedIDs() {
			current[id] = struct{}{}

			if _, ok := previous[id]; ok {
				c.StillFailing = append(c.StillFailing, id)
			} else {
				c.NewFailures = append(c.NewFailures, id)
			}
		}
	}

	for _, id := range prev.FailedTests {
		if _, ok := current[id]; !ok {
			c.Recovered = append(c.Recovered, id)
		}
	}

	return c
}
