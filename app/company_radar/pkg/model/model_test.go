package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArticleDate(t *testing.T) {
	a := Article{PublishDate: "2023-03-14"}
	d, ok := a.Date()
	assert.True(t, ok)
	assert.Equal(t, 2023, d.Year())
	assert.Equal(t, 3, int(d.Month()))

	for _, bad := range []string{"", Unavailable, "2023/03/14", "yesterday"} {
		_, ok := Article{PublishDate: bad}.Date()
		assert.False(t, ok, bad)
	}
}

func TestParseReportKind(t *testing.T) {
	k, ok := ParseReportKind(" Yearly ")
	assert.True(t, ok)
	assert.Equal(t, KindYearly, k)

	_, ok = ParseReportKind("weekly")
	assert.False(t, ok)
}

func TestProgressNotifyClampsAndToleratesNil(t *testing.T) {
	var nilFn ProgressFunc
	nilFn.Notify("ignored", 0.5, StatusInfo)

	var got []float64
	fn := ProgressFunc(func(_ string, f float64, _ ProgressStatus) { got = append(got, f) })
	fn.Notify("a", -1, StatusProgress)
	fn.Notify("b", 2, StatusProgress)
	assert.Equal(t, []float64{0, 1}, got)
}
