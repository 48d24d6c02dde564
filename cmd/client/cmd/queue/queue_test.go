package queue

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiptrack/internal/domain/entity"
	"shiptrack/internal/domain/mutation"
)

func TestParseSeq(t *testing.T) {
	seq, err := parseSeq("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	for _, bad := range []string{"", "abc", "0", "-1"} {
		_, err := parseSeq(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintMutations(t *testing.T) {
	ms := []mutation.Mutation{
		{Seq: 1, Kind: mutation.Create, EntityType: entity.Shipments, RecordID: "s1", Status: mutation.StatusPending},
		{Seq: 2, Kind: mutation.Update, EntityType: entity.Shipments, RecordID: "s2", Attempts: 5, Status: mutation.StatusFailed, LastError: "422"},
	}

	var buf bytes.Buffer
	require.NoError(t, printMutations(&buf, ms))

	out := buf.String()
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "422")
}
