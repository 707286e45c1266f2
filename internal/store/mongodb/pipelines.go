package mongodb

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tally/internal/core"
)

// summaryPipeline buckets a user's transactions by formatted date and sums
// their amounts. Buckets come back in ascending key order, capped at limit.
func summaryPipeline(user string, g core.Granularity, limit int, timezone string) mongo.Pipeline {
	dateToString := bson.D{
		{"format", g.DateFormat()},
		{"date", bson.D{{"$toDate", "$" + fieldDateTime}}},
	}
	if timezone != "" {
		dateToString = append(dateToString, bson.E{Key: "timezone", Value: timezone})
	}

	pipeline := mongo.Pipeline{
		{{"$match", bson.D{{fieldUser, user}}}},
		{{"$project", bson.D{
			{"date", bson.D{{"$dateToString", dateToString}}},
			{fieldAmount, 1},
		}}},
		{{"$group", bson.D{
			{"_id", "$date"},
			{"totalAmount", bson.D{{"$sum", "$" + fieldAmount}}},
		}}},
		{{"$sort", bson.D{{"_id", 1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{"$limit", int64(limit)}})
	}
	return pipeline
}

// sharePipeline sums a user's amounts per category or item. Missing or empty
// labels are grouped under core.UncategorizedLabel.
func sharePipeline(q core.ShareQuery) mongo.Pipeline {
	match := bson.D{{fieldUser, q.User}}
	if !q.Window.IsOpen() {
		bounds := bson.D{}
		if !q.Window.Since.IsZero() {
			bounds = append(bounds, bson.E{Key: "$gte", Value: q.Window.Since.UTC()})
		}
		if !q.Window.Until.IsZero() {
			bounds = append(bounds, bson.E{Key: "$lt", Value: q.Window.Until.UTC()})
		}
		match = append(match, bson.E{Key: fieldDateTime, Value: bounds})
	}

	ref := "$" + dimensionField(q.Dimension)
	label := bson.D{{"$cond", bson.A{
		bson.D{{"$eq", bson.A{bson.D{{"$ifNull", bson.A{ref, ""}}}, ""}}},
		core.UncategorizedLabel,
		ref,
	}}}

	return mongo.Pipeline{
		{{"$match", match}},
		{{"$group", bson.D{
			{"_id", label},
			{"total", bson.D{{"$sum", "$" + fieldAmount}}},
		}}},
		{{"$sort", bson.D{{"total", -1}, {"_id", 1}}}},
	}
}
