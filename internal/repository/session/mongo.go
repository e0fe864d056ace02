package session

import (
	"context"
	"errors"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"abandoned-tracker/internal/domain"
)

const collectionName = "abandoned_sessions"

const (
	cartIDField       = "identifiers.cartId"
	checkoutULIDField = "identifiers.checkoutUlid"
)

type mongoRepo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) Repository {
	return &mongoRepo{coll: db.Collection(collectionName)}
}

func (r *mongoRepo) Insert(ctx context.Context, s *domain.AbandonedSession) error {
	_, err := r.coll.InsertOne(ctx, s)
	return err
}

func (r *mongoRepo) FindByCartID(ctx context.Context, cartID string) (*domain.AbandonedSession, error) {
	return r.findOne(ctx, bson.M{cartIDField: cartID})
}

func (r *mongoRepo) FindByCheckoutULID(ctx context.Context, checkoutULID string) (*domain.AbandonedSession, error) {
	return r.findOne(ctx, bson.M{checkoutULIDField: checkoutULID})
}

func (r *mongoRepo) findOne(ctx context.Context, filter bson.M) (*domain.AbandonedSession, error) {
	var s domain.AbandonedSession
	if err := r.coll.FindOne(ctx, filter).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *mongoRepo) UpdateByCartID(ctx context.Context, cartID string, patch Patch) (bool, error) {
	return r.update(ctx, bson.M{cartIDField: cartID}, patch)
}

func (r *mongoRepo) UpdateByCheckoutULID(ctx context.Context, checkoutULID string, patch Patch) (bool, error) {
	return r.update(ctx, bson.M{checkoutULIDField: checkoutULID}, patch)
}

func (r *mongoRepo) update(ctx context.Context, filter bson.M, patch Patch) (bool, error) {
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": patch.setDocument()})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// setDocument translates the patch into a $set document, writing only the
// fields that are present.
func (p Patch) setDocument() bson.M {
	set := bson.M{"updatedAt": p.UpdatedAt}
	if p.Products != nil {
		set["products"] = *p.Products
	}
	if p.ProductsCount != nil {
		set["productsCount"] = *p.ProductsCount
	}
	if p.TotalAmount != nil {
		set["totalAmount"] = *p.TotalAmount
	}
	if p.CartID != nil {
		set[cartIDField] = *p.CartID
	}
	if p.CartStatus != nil {
		set["status.cart"] = *p.CartStatus
	}
	if p.CheckoutStatus != nil {
		set["status.checkout"] = *p.CheckoutStatus
	}
	if p.CartUpdatedAt != nil {
		set["cartUpdatedAt"] = *p.CartUpdatedAt
	}
	if p.CheckoutUpdatedAt != nil {
		set["checkoutUpdatedAt"] = *p.CheckoutUpdatedAt
	}
	return set
}

func (r *mongoRepo) AppendEventByCartID(ctx context.Context, cartID string, ev domain.SessionEvent) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{cartIDField: cartID}, bson.M{
		"$push": bson.M{"events": ev},
		"$set":  bson.M{"updatedAt": ev.Timestamp},
	})
	return err
}

// AppendEventByCheckoutULID appends unless an event with the same type and
// timestamp is already recorded. Reports whether the event was added.
func (r *mongoRepo) AppendEventByCheckoutULID(ctx context.Context, checkoutULID string, ev domain.SessionEvent) (bool, error) {
	existing, err := r.FindByCheckoutULID(ctx, checkoutULID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	for _, recorded := range existing.Events {
		if recorded.Matches(ev) {
			return false, nil
		}
	}

	_, err = r.coll.UpdateOne(ctx, bson.M{checkoutULIDField: checkoutULID}, bson.M{
		"$push": bson.M{"events": ev},
		"$set":  bson.M{"updatedAt": ev.Timestamp},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *mongoRepo) HasEventByCartID(ctx context.Context, cartID, eventType string) (bool, error) {
	return r.hasEvent(ctx, bson.M{cartIDField: cartID, "events.type": eventType})
}

func (r *mongoRepo) HasEventByCheckoutULID(ctx context.Context, checkoutULID, eventType string) (bool, error) {
	return r.hasEvent(ctx, bson.M{checkoutULIDField: checkoutULID, "events.type": eventType})
}

func (r *mongoRepo) hasEvent(ctx context.Context, filter bson.M) (bool, error) {
	err := r.coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BulkUpsertCarts writes one micro-batch as a single unordered bulk
// operation, keyed by cart id. Identity fields are set only on insert;
// the product snapshot and timestamps are written on every pass.
func (r *mongoRepo) BulkUpsertCarts(ctx context.Context, sessions []domain.AbandonedSession) (BulkUpsertResult, error) {
	if len(sessions) == 0 {
		return BulkUpsertResult{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(sessions))
	for _, s := range sessions {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{cartIDField: s.Identifiers.CartID}).
			SetUpdate(bson.M{
				"$setOnInsert": bson.M{
					"sellerId":     s.SellerID,
					"sessionType":  s.SessionType,
					"platform":     s.Platform,
					"email":        s.Email,
					"customerInfo": s.CustomerInfo,
					"identifiers":  s.Identifiers,
					"currency":     s.Currency,
					"status":       s.Status,
					"date":         s.Date,
					"createdAt":    s.CreatedAt,
					"events":       s.Events,
				},
				"$set": bson.M{
					"products":      s.Products,
					"productsCount": s.ProductsCount,
					"totalAmount":   s.TotalAmount,
					"updatedAt":     s.UpdatedAt,
					"cartUpdatedAt": s.CartUpdatedAt,
				},
			}).
			SetUpsert(true))
	}

	res, err := r.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return BulkUpsertResult{}, err
	}

	created := make([]int, 0, len(res.UpsertedIDs))
	for idx := range res.UpsertedIDs {
		created = append(created, int(idx))
	}
	sort.Ints(created)

	return BulkUpsertResult{
		Matched:        res.MatchedCount,
		Modified:       res.ModifiedCount,
		Created:        res.UpsertedCount,
		CreatedIndexes: created,
	}, nil
}
