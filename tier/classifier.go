package tier

import (
	"strconv"
	"time"

	"github.com/hupe1980/vectier/model"
	"github.com/hupe1980/vectier/vectorstore"
)

// Classifier assigns a tier to a record.
type Classifier = vectorstore.Classifier

// YearClassifier assigns the UTC year of CreatedAt, e.g. "2020".
func YearClassifier(rec model.Record) model.TierID {
	return model.TierID(strconv.Itoa(rec.CreatedAt.UTC().Year()))
}

// BoundaryClassifier keeps records created at or after boundary in hot and
// classifies older records by year.
func BoundaryClassifier(boundary time.Time, hot model.TierID) Classifier {
	return func(rec model.Record) model.TierID {
		if !rec.CreatedAt.Before(boundary) {
			return hot
		}
		return YearClassifier(rec)
	}
}
