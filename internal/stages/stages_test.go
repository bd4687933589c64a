package stages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequenceFor(t *testing.T) {
	seq, ok := SequenceFor(Pipeline7)
	require.True(t, ok)
	require.Equal(t, 7, seq.Len())
	require.Equal(t, []ID{FitUp, NDE, VIDI, Galv, Shot, Paint, Packing}, ids(seq))

	seq, ok = SequenceFor(Pipeline8)
	require.True(t, ok)
	require.Equal(t, 8, seq.Len())
	require.Equal(t, []ID{FitUp, Final, ArupFinal, Galv, ArupGalv, Shot, Paint, ArupPaint}, ids(seq))

	_, ok = SequenceFor("PIPELINE_9")
	require.False(t, ok)
}

func ids(seq Sequence) []ID {
	out := make([]ID, 0, seq.Len())
	for _, st := range seq.Stages() {
		out = append(out, st.ID)
	}
	return out
}

func TestSequence_StagesReturnsCopy(t *testing.T) {
	seq, _ := SequenceFor(Pipeline7)
	got := seq.Stages()
	got[0] = Stage{ID: "HACKED"}

	require.Equal(t, FitUp, seq.Stages()[0].ID)
}

func TestSequence_IndexAndContains(t *testing.T) {
	seq, _ := SequenceFor(Pipeline8)
	require.Equal(t, 0, seq.Index(FitUp))
	require.Equal(t, 3, seq.Index(Galv))
	require.Equal(t, -1, seq.Index(NDE))
	require.True(t, seq.Contains(ArupPaint))
	require.False(t, seq.Contains(Packing))

	st, ok := seq.Stage(ArupFinal)
	require.True(t, ok)
	require.Equal(t, "ARUP FINAL", st.DisplayName)
	require.Equal(t, "arup_final_date", st.Field)
}

func TestSharedStageUsesSameField(t *testing.T) {
	s7, _ := sequence7.Stage(Galv)
	s8, _ := sequence8.Stage(Galv)
	require.Equal(t, s7.Field, s8.Field)
}

func TestParsePipeline(t *testing.T) {
	for in, want := range map[string]Pipeline{
		"PIPELINE_7": Pipeline7,
		"pipeline_8": Pipeline8,
		" 7 ":        Pipeline7,
		"8":          Pipeline8,
	} {
		got, ok := ParsePipeline(in)
		require.True(t, ok, in)
		require.Equal(t, want, got)
	}
	_, ok := ParsePipeline("6")
	require.False(t, ok)
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]ID{
		"Fit-up":     FitUp,
		"fit_up":     FitUp,
		"ARUP FINAL": ArupFinal,
		"galv":       Galv,
	} {
		got, ok := ParseID(in)
		require.True(t, ok, in)
		require.Equal(t, want, got)
	}
	_, ok := ParseID("WELD")
	require.False(t, ok)
}

func TestAll(t *testing.T) {
	all := All()
	require.Len(t, all, 11)

	seen := map[ID]bool{}
	for _, st := range all {
		require.False(t, seen[st.ID], st.ID)
		seen[st.ID] = true
	}
}

func TestIsSentinel(t *testing.T) {
	require.True(t, IsSentinel(SentinelDate))
	require.True(t, IsSentinel(time.Date(1900, 1, 1, 9, 0, 0, 0, time.FixedZone("KST", 9*3600))))
	require.False(t, IsSentinel(time.Date(1900, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.False(t, IsSentinel(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestColumns(t *testing.T) {
	cols := Columns()
	require.Len(t, cols, 11)
	require.Contains(t, cols, "fit_up_date")
	require.Contains(t, cols, "arup_paint_date")
	require.Contains(t, cols, "packing_date")
}
