package order

import (
	"context"

	"p2p_trade/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type (
	// OrderRepo remembers which trade index negotiates which order so the
	// trade key can be re-derived later.
	OrderRepo struct {
		collection *mongo.Collection
	}
)

func NewOrderRepo(db *mongo.Database) *OrderRepo {
	return &OrderRepo{
		collection: db.Collection("trades"),
	}
}

func (r *OrderRepo) Save(ctx context.Context, rec *model.TradeRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"order_id": rec.OrderID}, rec, opts)
	return err
}

// GetByOrderID returns nil, nil for an unknown order.
func (r *OrderRepo) GetByOrderID(ctx context.Context, orderID string) (*model.TradeRecord, error) {
	var rec model.TradeRecord
	err := r.collection.FindOne(ctx, bson.M{"order_id": orderID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *OrderRepo) List(ctx context.Context) ([]model.TradeRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "trade_index", Value: 1}})
	cur, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	var out []model.TradeRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
