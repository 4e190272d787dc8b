package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-risk/internal/investigate"
	"github.com/sells-group/provider-risk/internal/model"
	"github.com/sells-group/provider-risk/internal/resilience"
)

func TestReadNPIs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr string
	}{
		{
			name:  "npi column with duplicates",
			input: "Name,NPI\nSmith,1234567893\nDoe,1245319599\nSmith again,1234567893\n",
			want:  []string{"1234567893", "1245319599"},
		},
		{
			name:  "lowercase header and blank cells",
			input: "npi\n1003000126\n\n 1111111112 \n",
			want:  []string{"1003000126", "1111111112"},
		},
		{
			name:  "headerless single column",
			input: "1234567893\n1245319599\n",
			want:  []string{"1234567893", "1245319599"},
		},
		{
			name:  "invalid values are kept for the investigator to reject",
			input: "NPI\n1234567890\n",
			want:  []string{"1234567890"},
		},
		{
			name:  "empty file",
			input: "",
			want:  nil,
		},
		{
			name:    "no npi column",
			input:   "name,city\nSmith,Austin\n",
			wantErr: "no NPI column",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readNPIs(context.Background(), strings.NewReader(tt.input))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"1245319599": eris.Wrap(resilience.StatusError("cms", 503), "investigate: collect"),
	}}
	npis := []string{"1234567893", "1245319599", "1234567890", "1003000126"}

	rows := processBatch(context.Background(), npis, 2, runner, investigate.RunOptions{Save: true})
	require.Len(t, rows, 4)

	for i, npi := range npis {
		assert.Equal(t, npi, rows[i].NPI, "rows keep input order")
	}

	assert.NoError(t, rows[0].Err)
	assert.Equal(t, "inv-1234567893", rows[0].ID)
	assert.Equal(t, 72, rows[0].RiskScore)
	assert.Equal(t, model.PriorityHigh, rows[0].Priority)
	assert.Equal(t, 1, rows[0].Evidence)
	assert.Equal(t, 1, rows[0].SourceErrors)

	require.Error(t, rows[1].Err)
	assert.Equal(t, "transient", resilience.ErrorKind(rows[1].Err))

	require.Error(t, rows[2].Err)
	assert.True(t, model.IsStructural(rows[2].Err))

	assert.NoError(t, rows[3].Err)

	assert.Len(t, runner.calls, 4)
	for _, o := range runner.opts {
		assert.True(t, o.Save)
		assert.False(t, o.Report)
	}
}

func TestProcessBatch_Empty(t *testing.T) {
	runner := &fakeRunner{}
	rows := processBatch(context.Background(), nil, 4, runner, investigate.RunOptions{})
	assert.Empty(t, rows)
	assert.Empty(t, runner.calls)
}

func TestProcessBatch_ZeroConcurrency(t *testing.T) {
	runner := &fakeRunner{}
	rows := processBatch(context.Background(), []string{"1234567893"}, 0, runner, investigate.RunOptions{})
	require.Len(t, rows, 1)
	assert.NoError(t, rows[0].Err)
}

func TestWriteBatchCSV(t *testing.T) {
	rows := []batchRow{
		{NPI: "1234567893", ID: "inv-1", RiskScore: 72, Priority: model.PriorityHigh, Quality: 0.75, Evidence: 3, SourceErrors: 1},
		{NPI: "1245319599", Err: eris.Wrap(resilience.ErrCircuitOpen, "source cms")},
		{NPI: "1234567890", Err: model.NewStructuralError("npi", "bad check digit")},
	}

	var buf bytes.Buffer
	require.NoError(t, writeBatchCSV(&buf, rows))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, batchHeader, recs[0])
	assert.Equal(t, []string{"1234567893", "inv-1", "72", "high", "0.75", "3", "1", "", ""}, recs[1])

	assert.Equal(t, "1245319599", recs[2][0])
	assert.Empty(t, recs[2][2])
	assert.Contains(t, recs[2][7], "circuit breaker is open")
	assert.Equal(t, "transient", recs[2][8])

	assert.Contains(t, recs[3][7], "bad check digit")
	assert.Equal(t, "permanent", recs[3][8])
}
