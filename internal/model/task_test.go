package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func record() TaskRecord {
	return TaskRecord{
		TaskID:      "t1",
		TaskName:    "build",
		ProjectID:   "p1",
		ProjectName: "Alpha",
		CompletedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		ActualTime:  f(8),
		Tags:        []string{"infra", "backend"},
		InsertedAt:  time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC),
	}
}

func TestEqualIgnoresInsertedAt(t *testing.T) {
	a := record()
	b := record()
	b.InsertedAt = b.InsertedAt.Add(48 * time.Hour)
	assert.True(t, a.Equal(&b))
}

func TestEqualDetectsFieldChange(t *testing.T) {
	a := record()

	b := record()
	b.TaskName = "build v2"
	assert.False(t, a.Equal(&b))

	c := record()
	c.ActualTime = f(9)
	assert.False(t, a.Equal(&c))

	d := record()
	d.ActualTime = nil
	assert.False(t, a.Equal(&d))
}

func TestEqualTagOrderInsensitive(t *testing.T) {
	a := record()
	b := record()
	b.Tags = []string{"backend", "infra"}
	assert.True(t, a.Equal(&b))

	c := record()
	c.Tags = []string{"backend"}
	assert.False(t, a.Equal(&c))
}

func TestEqualNilOther(t *testing.T) {
	a := record()
	assert.False(t, a.Equal(nil))
}

func TestNormalizeTags(t *testing.T) {
	assert.Nil(t, NormalizeTags(nil))
	assert.Nil(t, NormalizeTags([]string{"", ""}))
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"b", "a", "b", ""}))
}

func TestUnestimated(t *testing.T) {
	a := record()
	assert.False(t, a.Unestimated())
	a.ActualTime = nil
	assert.True(t, a.Unestimated())
}
