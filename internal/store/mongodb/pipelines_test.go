package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tally/internal/core"
)

func stageNames(p mongo.Pipeline) []string {
	names := make([]string, 0, len(p))
	for _, stage := range p {
		names = append(names, stage[0].Key)
	}
	return names
}

func lookup(t *testing.T, d bson.D, key string) any {
	t.Helper()
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	t.Fatalf("key %q not found in %v", key, d)
	return nil
}

func TestSummaryPipelineShape(t *testing.T) {
	p := summaryPipeline("alice", core.Daily, 20, "Asia/Tokyo")
	require.Equal(t, []string{"$match", "$project", "$group", "$sort", "$limit"}, stageNames(p))

	match := p[0][0].Value.(bson.D)
	assert.Equal(t, "alice", lookup(t, match, "User"))

	project := p[1][0].Value.(bson.D)
	date := lookup(t, project, "date").(bson.D)
	expr := lookup(t, date, "$dateToString").(bson.D)
	assert.Equal(t, "%Y-%m-%d", lookup(t, expr, "format"))
	assert.Equal(t, "Asia/Tokyo", lookup(t, expr, "timezone"))
	assert.Equal(t, bson.D{{"$toDate", "$DateTime"}}, lookup(t, expr, "date"))
	assert.Equal(t, 1, lookup(t, project, "Amount"))

	group := p[2][0].Value.(bson.D)
	assert.Equal(t, "$date", lookup(t, group, "_id"))
	assert.Equal(t, bson.D{{"$sum", "$Amount"}}, lookup(t, group, "totalAmount"))

	assert.Equal(t, bson.D{{"_id", 1}}, p[3][0].Value)
	assert.Equal(t, int64(20), p[4][0].Value)
}

func TestSummaryPipelineMonthlyWithoutLimit(t *testing.T) {
	p := summaryPipeline("bob", core.Monthly, 0, "")
	require.Equal(t, []string{"$match", "$project", "$group", "$sort"}, stageNames(p))
	expr := lookup(t, lookup(t, p[1][0].Value.(bson.D), "date").(bson.D), "$dateToString").(bson.D)
	assert.Equal(t, "%Y-%m", lookup(t, expr, "format"))
	assert.Len(t, expr, 2, "no timezone entry expected")
}

func TestSharePipelineShape(t *testing.T) {
	p := sharePipeline(core.ShareQuery{User: "alice", Dimension: core.ByItem})
	require.Equal(t, []string{"$match", "$group", "$sort"}, stageNames(p))
	assert.Equal(t, bson.D{{"User", "alice"}}, p[0][0].Value)

	group := p[1][0].Value.(bson.D)
	label := lookup(t, group, "_id").(bson.D)
	cond := lookup(t, label, "$cond").(bson.A)
	require.Len(t, cond, 3)
	assert.Equal(t, core.UncategorizedLabel, cond[1])
	assert.Equal(t, "$Item", cond[2])
	assert.Equal(t, bson.D{{"$sum", "$Amount"}}, lookup(t, group, "total"))
	assert.Equal(t, bson.D{{"total", -1}, {"_id", 1}}, p[2][0].Value)
}

func TestSharePipelineWindow(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	w := core.MonthWindow(time.Date(2024, 2, 10, 0, 0, 0, 0, tokyo), tokyo)
	p := sharePipeline(core.ShareQuery{User: "alice", Dimension: core.ByCategory, Window: w})

	match := p[0][0].Value.(bson.D)
	bounds := lookup(t, match, "DateTime").(bson.D)
	since := lookup(t, bounds, "$gte").(time.Time)
	until := lookup(t, bounds, "$lt").(time.Time)
	assert.Equal(t, time.UTC, since.Location())
	assert.True(t, since.Equal(w.Since))
	assert.True(t, until.Equal(w.Until))

	cond := lookup(t, lookup(t, p[1][0].Value.(bson.D), "_id").(bson.D), "$cond").(bson.A)
	assert.Equal(t, "$Category", cond[2])
}

func TestDocumentConversion(t *testing.T) {
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.FixedZone("X", 3600))
	doc := fromTransaction(core.Transaction{Timestamp: ts, Item: "Tea", Amount: 120, User: "alice", Category: "  Food "})
	assert.Equal(t, time.UTC, doc.DateTime.Location())
	assert.Equal(t, "Food", doc.Category)

	back := doc.toTransaction()
	assert.True(t, back.Timestamp.Equal(ts))
	assert.Equal(t, "Tea", back.Item)
	assert.Equal(t, int64(120), back.Amount)
}
