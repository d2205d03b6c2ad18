package user

import (
	"context"
	"errors"

	"p2p_trade/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNoUser = errors.New("user not found")

type (
	UserRepo struct {
		collection *mongo.Collection
	}
)

func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{
		collection: db.Collection("users"),
	}
}

// GetCurrent returns the local account, or nil, nil before init.
func (r *UserRepo) GetCurrent(ctx context.Context) (*model.User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})

	var user model.User
	err := r.collection.FindOne(ctx, bson.M{}, opts).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) (primitive.ObjectID, error) {
	res, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return primitive.NilObjectID, err
	}

	id := res.InsertedID.(primitive.ObjectID)
	user.ID = id
	return id, nil
}

// AdvanceTradeIndex atomically bumps the counter and returns the new value,
// so concurrent callers never receive the same index.
func (r *UserRepo) AdvanceTradeIndex(ctx context.Context, id primitive.ObjectID) (int64, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	update := bson.M{"$inc": bson.M{"last_trade_index": 1}}

	var user model.User
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return 0, ErrNoUser
	}

	if err != nil {
		return 0, err
	}

	return user.LastTradeIndex, nil
}

// RaiseTradeIndex moves the counter up to idx; it never lowers it.
func (r *UserRepo) RaiseTradeIndex(ctx context.Context, id primitive.ObjectID, idx int64) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$max": bson.M{"last_trade_index": idx}})
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		return ErrNoUser
	}
	return nil
}
