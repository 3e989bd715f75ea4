package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input      string
		wantKey    string
		wantDomain string
		wantName   string
	}{
		{"acme.com", "acme.com", "acme.com", "Acme"},
		{"  https://www.Acme-Labs.co.uk/about  ", "acme-labs.co.uk", "acme-labs.co.uk", "Acme Labs"},
		{"http://foo_bar.io", "foo_bar.io", "foo_bar.io", "Foo Bar"},
		{"Acme   Corporation", "acme corporation", "", "Acme   Corporation"},
		{"localhost", "localhost", "", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := NewTarget(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, got.Key)
			assert.Equal(t, tt.wantDomain, got.Domain)
			assert.Equal(t, tt.wantName, got.Name)
		})
	}
}

func TestNewTarget_Empty(t *testing.T) {
	t.Parallel()

	_, err := NewTarget("   ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestTargetLabel(t *testing.T) {
	t.Parallel()

	d, _ := NewTarget("acme.com")
	n, _ := NewTarget("Acme Corp")
	assert.Equal(t, "acme.com", d.Label())
	assert.True(t, d.IsDomain())
	assert.Equal(t, "Acme Corp", n.Label())
	assert.False(t, n.IsDomain())
}

func TestPhaseCanAdvance(t *testing.T) {
	t.Parallel()

	order := []Phase{PhaseInitializing, PhaseSearching, PhaseBrowsing, PhaseExtracting, PhaseFinalizing, PhaseCompleted}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanAdvance(order[i+1]), "%s -> %s", order[i], order[i+1])
		assert.Equal(t, order[i+1], order[i].Next())
		assert.False(t, order[i+1].CanAdvance(order[i]), "no regress %s -> %s", order[i+1], order[i])
	}

	assert.False(t, PhaseSearching.CanAdvance(PhaseExtracting), "no skipping")
	assert.False(t, PhaseSearching.CanAdvance(PhaseSearching), "no re-entry")
	assert.True(t, PhaseBrowsing.CanAdvance(PhaseFailed))
	assert.False(t, PhaseCompleted.CanAdvance(PhaseFailed))
	assert.False(t, PhaseFailed.CanAdvance(PhaseSearching))
	assert.Equal(t, Phase(""), PhaseCompleted.Next())
	assert.True(t, PhaseFailed.Valid())
	assert.False(t, Phase("reading").Valid())
}

func TestBatchJob_SequentialProgress(t *testing.T) {
	t.Parallel()

	a, _ := NewTarget("a.com")
	b, _ := NewTarget("b.com")
	job := NewBatchJob("job-1", "list.csv", []Target{a, b})
	assert.Equal(t, 2, job.Total)
	assert.Equal(t, 0, job.Next())

	require.Error(t, job.Begin(1), "out of order start")

	require.NoError(t, job.Begin(0))
	p, err := job.Finish(0, Outcome{Target: a, Phase: PhaseFailed, Failure: "boom"})
	require.NoError(t, err)
	assert.Equal(t, Progress{Current: 1, Total: 2, Target: "a.com", Status: "failed"}, p)
	assert.False(t, job.Done())

	rec := NewExtractionRecord(b)
	require.NoError(t, job.Begin(1))
	p, err = job.Finish(1, Outcome{Target: b, Phase: PhaseCompleted, Record: &rec})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Current)
	assert.True(t, job.Done())
	assert.Equal(t, BatchCompleted, job.Status)
	assert.Equal(t, -1, job.Next())

	_, err = job.Finish(1, Outcome{Target: b})
	require.Error(t, err, "processed count never goes back")

	s, f := job.Counts()
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, f)
	outcomes := job.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, "a.com", outcomes[0].Target.Key)
	assert.Equal(t, "b.com", outcomes[1].Target.Key)
}

func TestOutcomeErr(t *testing.T) {
	t.Parallel()

	target, _ := NewTarget("a.com")
	rec := NewExtractionRecord(target)
	ok := Outcome{Target: target, Phase: PhaseCompleted, Record: &rec}
	assert.True(t, ok.Succeeded())
	assert.NoError(t, ok.Err())

	bad := Outcome{Target: target, Phase: PhaseFailed, FailedIn: PhaseSearching, Failure: "no candidates"}
	err := bad.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "searching")
	assert.Contains(t, err.Error(), "no candidates")

	run := RunFromOutcome(bad, "batch-1")
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, "batch-1", run.BatchID)
}

func TestExtractionRecordAccessors(t *testing.T) {
	t.Parallel()

	target, _ := NewTarget("a.com")
	rec := NewExtractionRecord(target)
	rec.Fields[FieldIndustry] = "Software"
	rec.Lists[ListTags] = []string{"saas"}

	v, ok := rec.Get(FieldIndustry)
	assert.True(t, ok)
	assert.Equal(t, "Software", v)
	assert.Equal(t, "", rec.Value(FieldSector))
	assert.True(t, rec.Has(ListTags))
	assert.False(t, rec.Has(ListProducts))
	assert.False(t, rec.Has(FieldKeyPeople))
	assert.True(t, IsListField(ListTechStack))
	assert.False(t, IsListField(FieldSector))
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	pf := NewProviderFailure("jina", "search", assert.AnError)
	assert.True(t, IsProviderFailure(pf))
	assert.ErrorIs(t, pf, assert.AnError)
	assert.False(t, IsValidation(pf))

	sf := &SessionFault{Reason: "bad directive"}
	assert.Equal(t, "session: bad directive", sf.Error())
}
