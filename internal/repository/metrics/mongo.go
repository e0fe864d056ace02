package metrics

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"abandoned-tracker/internal/domain"
)

const (
	collectionName        = "abandoned_metrics"
	sessionCollectionName = "abandoned_sessions"
)

type mongoRepo struct {
	coll     *mongo.Collection
	sessions *mongo.Collection
	logger   *log.Logger
}

func NewMongo(db *mongo.Database, logger *log.Logger) Repository {
	return &mongoRepo{
		coll:     db.Collection(collectionName),
		sessions: db.Collection(sessionCollectionName),
		logger:   logger,
	}
}

func (r *mongoRepo) IncrementAbandonment(ctx context.Context, sellerID int, date, category string, amount float64) error {
	inc := bson.M{
		category + ".abandoned":       1,
		category + ".abandonedAmount": amount,
		"totals.totalAbandonedAmount": amount,
	}
	return r.upsertRow(ctx, sellerID, date, inc)
}

func (r *mongoRepo) IncrementRecovery(ctx context.Context, sellerID int, category, sessionID string) error {
	idField := "identifiers.cartId"
	if category == domain.CategoryCheckout {
		idField = "identifiers.checkoutUlid"
	}

	var session domain.AbandonedSession
	err := r.sessions.FindOne(ctx, bson.M{idField: sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Recovery metrics require a resolvable session.
			return nil
		}
		return err
	}

	amount := session.TotalAmount
	inc := bson.M{
		category + ".recovered":       1,
		category + ".recoveredAmount": amount,
		category + ".abandoned":       -1,
		category + ".abandonedAmount": -amount,
		"totals.totalRecoveredAmount": amount,
		"totals.totalAbandonedAmount": -amount,
	}
	return r.upsertRow(ctx, sellerID, session.Date, inc)
}

func (r *mongoRepo) ProcessBatch(ctx context.Context, ops []domain.MetricOperation) error {
	if len(ops) == 0 {
		return nil
	}

	groups := foldOperations(ops)
	models := make([]mongo.WriteModel, 0, len(groups))
	now := time.Now().UTC()
	for key, agg := range groups {
		inc := agg.incDocument()
		if len(inc) == 0 {
			continue
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"sellerId": key.SellerID, "date": key.Date}).
			SetUpdate(bson.M{
				"$inc": inc,
				"$set": bson.M{"lastUpdatedAt": now},
			}).
			SetUpsert(true))
	}
	if len(models) == 0 {
		return nil
	}

	_, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (r *mongoRepo) IncrementBatchAggregate(ctx context.Context, sellerID int, date string, count int, totalAmount float64) error {
	inc := bson.M{
		"cart.abandoned":              count,
		"cart.abandonedAmount":        totalAmount,
		"totals.totalAbandonedAmount": totalAmount,
	}
	return r.upsertRow(ctx, sellerID, date, inc)
}

func (r *mongoRepo) upsertRow(ctx context.Context, sellerID int, date string, inc bson.M) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"sellerId": sellerID, "date": date},
		bson.M{
			"$inc": inc,
			"$set": bson.M{"lastUpdatedAt": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
