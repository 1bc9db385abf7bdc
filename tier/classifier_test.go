package tier

import (
	"testing"
	"time"

	"github.com/hupe1980/vectier/model"
	"github.com/stretchr/testify/assert"
)

func TestYearClassifier(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want model.TierID
	}{
		{"utc", time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "2020"},
		{"newYearsEve", time.Date(2021, 12, 31, 23, 59, 59, 0, time.UTC), "2021"},
		{"offsetZone", time.Date(2022, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 2*3600)), "2021"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, YearClassifier(model.Record{CreatedAt: tt.at}))
		})
	}
}

func TestBoundaryClassifier(t *testing.T) {
	boundary := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := BoundaryClassifier(boundary, "hot")

	assert.Equal(t, model.TierID("hot"), c(model.Record{CreatedAt: boundary}))
	assert.Equal(t, model.TierID("hot"), c(model.Record{CreatedAt: boundary.Add(time.Hour)}))
	assert.Equal(t, model.TierID("2023"), c(model.Record{CreatedAt: boundary.Add(-time.Second)}))
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "local", Local.String())
	assert.Equal(t, "external", External.String())
	assert.Equal(t, "queryable-directly", QueryableDirect.String())
	assert.Equal(t, "scan-only", ScanOnly.String())
	assert.Equal(t, "Mode(7)", Mode(7).String())
}
