package mongodb

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"tally/internal/core"
)

// Field names of the accounting collection. They match documents written by
// earlier versions of the dashboard and must not change.
const (
	fieldDateTime = "DateTime"
	fieldItem     = "Item"
	fieldAmount   = "Amount"
	fieldUser     = "User"
	fieldCategory = "Category"
)

type transactionDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	DateTime time.Time          `bson:"DateTime"`
	Item     string             `bson:"Item"`
	Amount   int64              `bson:"Amount"`
	User     string             `bson:"User"`
	Category string             `bson:"Category,omitempty"`
}

type userDoc struct {
	ID   primitive.ObjectID `bson:"_id,omitempty"`
	Name string             `bson:"name"`
}

type periodDoc struct {
	Period string `bson:"_id"`
	Total  int64  `bson:"totalAmount"`
}

type labelDoc struct {
	Label string `bson:"_id"`
	Total int64  `bson:"total"`
}

func fromTransaction(t core.Transaction) transactionDoc {
	return transactionDoc{
		DateTime: t.Timestamp.UTC(),
		Item:     t.Item,
		Amount:   t.Amount,
		User:     t.User,
		Category: strings.TrimSpace(t.Category),
	}
}

func (d transactionDoc) toTransaction() core.Transaction {
	return core.Transaction{
		ID:        d.ID.Hex(),
		Timestamp: d.DateTime,
		Item:      d.Item,
		Amount:    d.Amount,
		User:      d.User,
		Category:  d.Category,
	}
}

// dimensionField maps a grouping dimension to its document field.
func dimensionField(d core.Dimension) string {
	if d == core.ByItem {
		return fieldItem
	}
	return fieldCategory
}
