package todo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"abandoned-tracker/internal/domain"
)

const collectionName = "todos"

type mongoRepo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) Repository {
	return &mongoRepo{coll: db.Collection(collectionName)}
}

func (r *mongoRepo) List(ctx context.Context) ([]domain.Todo, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	todos := make([]domain.Todo, 0)
	if err := cursor.All(ctx, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func (r *mongoRepo) GetByID(ctx context.Context, id string) (*domain.Todo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	var t domain.Todo
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *mongoRepo) Create(ctx context.Context, title string) (*domain.Todo, error) {
	now := time.Now().UTC()
	t := domain.Todo{
		Title:     title,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := r.coll.InsertOne(ctx, t)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		t.ID = oid
	}
	return &t, nil
}

func (r *mongoRepo) Update(ctx context.Context, id string, patch UpdateInput) (*domain.Todo, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}

	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}

	var t domain.Todo
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *mongoRepo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return domain.ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}
